package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenEmptyDSNDisablesAuditing(t *testing.T) {
	st, err := Open("")
	assert.NoError(t, err)
	assert.Nil(t, st)
	assert.False(t, st.Enabled())
}

func TestNilStoreRecordRunIsNoop(t *testing.T) {
	var st *Store
	err := st.RecordRun(ProcessRun{ID: "run-1"}, []PaystubRecord{{EmployeeName: "John Doe"}})
	assert.NoError(t, err)
}

func TestOpenBadDSN(t *testing.T) {
	_, err := Open("not a dsn")
	assert.Error(t, err)
}
