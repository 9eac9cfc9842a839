package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"paystubs/internal/chrome"
	"paystubs/internal/mailer"
	"paystubs/internal/payroll"
	"paystubs/internal/paystub"
	"paystubs/internal/store"
	u "paystubs/internal/utils"
)

// ProcessParams holds validated input for one payroll upload.
type ProcessParams struct {
	Country    string
	Company    string
	SendEmails bool
	CSV        []byte
}

// GeneratedFile describes one paystub written to the output directory.
type GeneratedFile struct {
	Employee string `json:"employee"`
	File     string `json:"file"`
	Email    string `json:"email"`
}

// EmailReport is the per-employee delivery outcome.
type EmailReport struct {
	Employee string `json:"employee"`
	Email    string `json:"email"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// ProcessService bundles configuration and dependencies for payroll
// processing: Chrome rendering, the PDF cache, mail delivery and the
// optional audit store.
type ProcessService struct {
	Config *u.Config
	Redis  *redis.Client
	Mailer mailer.Sender
	Store  *store.Store

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error

	// render is swappable in tests; nil means renderPDF.
	render func(html string) ([]byte, error)
}

// NewProcessService creates a new ProcessService instance.
func NewProcessService(cfg u.Config, rdb *redis.Client, snd mailer.Sender, st *store.Store) *ProcessService {
	return &ProcessService{
		Config: &cfg,
		Redis:  rdb,
		Mailer: snd,
		Store:  st,
	}
}

func (svc *ProcessService) getChromePool() (*chrome.Pool, error) {
	svc.poolMu.Lock()
	defer svc.poolMu.Unlock()

	if svc.Config.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if svc.pool != nil {
		return svc.pool, nil
	}
	pool, err := chrome.NewPool(*svc.Config)
	if err != nil {
		svc.poolErr = err
		return nil, err
	}
	svc.pool = pool
	return svc.pool, nil
}

var companyRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// HandleProcess accepts a payroll CSV upload, renders a paystub PDF per
// valid row and mails it to the employee.
func (svc *ProcessService) HandleProcess(c *fiber.Ctx) error {
	params, err := validateAndExtractProcessParams(c, *svc.Config)
	if err != nil {
		return err
	}
	return svc.processPayroll(c, params)
}

// validateAndExtractProcessParams validates the multipart form and reads
// the CSV payload.
func validateAndExtractProcessParams(c *fiber.Ctx, cfg u.Config) (*ProcessParams, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Missing CSV file upload")
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".csv") {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Only CSV files are allowed")
	}
	if fh.Size > int64(cfg.Limits.MaxCSVBytes) {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Max size is %dMB", cfg.Limits.MaxCSVBytes/1024/1024))
	}

	country := c.FormValue("country")
	if country == "" {
		country = cfg.Paystub.DefaultCountry
	}
	if !paystub.SupportedCountry(country) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid country: must be 'do' or 'en'")
	}

	company := c.FormValue("company")
	if company == "" {
		company = cfg.Paystub.DefaultCompany
	}
	if !companyRe.MatchString(company) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid company: only letters, digits, '-' and '_'")
	}

	sendEmails := true
	switch strings.ToLower(c.FormValue("send_emails")) {
	case "false", "0", "f":
		sendEmails = false
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Cannot read uploaded file")
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Cannot read uploaded file")
	}

	return &ProcessParams{
		Country:    country,
		Company:    company,
		SendEmails: sendEmails,
		CSV:        buf,
	}, nil
}

// processPayroll runs the full pipeline: parse, render, write, notify,
// audit. Row-level problems are reported, not fatal; systemic render
// failures abort the request.
func (svc *ProcessService) processPayroll(c *fiber.Ctx, params *ProcessParams) error {
	rows, rowErrs, err := payroll.ParseCSV(bytes.NewReader(params.CSV))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid CSV format: "+err.Error())
	}

	outputDir := svc.Config.Paystub.OutputDir
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Cannot create output directory")
	}

	var generated []GeneratedFile
	var emailResults []EmailReport

	for i, row := range rows {
		emp := row.Employee

		pdfBuf, err := svc.renderPaystub(c, emp, params.Company, params.Country)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				u.Error("Paystub render timeout", "timeout_secs", svc.Config.PDF.TimeoutSecs, "employee", emp.FullName)
				return fiber.NewError(fiber.StatusRequestTimeout, "PDF rendering took too long")
			}
			if chrome.IsSessionInterrupted(err) {
				u.Error("Chrome session interrupted", "error", err.Error())
				return fiber.NewError(fiber.StatusServiceUnavailable, "Chrome session interrupted")
			}
			rowErrs = append(rowErrs, payroll.RowError{
				Row:   row.Row,
				Error: "PDF generation failed: " + err.Error(),
				Type:  "pdf_generation",
			})
			continue
		}

		if len(pdfBuf) > svc.Config.Limits.MaxPDFBytes {
			rowErrs = append(rowErrs, payroll.RowError{
				Row:   row.Row,
				Error: "PDF generation failed: document exceeds allowed size",
				Type:  "pdf_generation",
			})
			continue
		}

		finalPath := filepath.Join(outputDir, xid.New().String()+"_"+paystub.FileName(emp))
		if err := os.WriteFile(finalPath, pdfBuf, 0o644); err != nil {
			rowErrs = append(rowErrs, payroll.RowError{
				Row:   row.Row,
				Error: "PDF generation failed: " + err.Error(),
				Type:  "pdf_generation",
			})
			continue
		}

		generated = append(generated, GeneratedFile{
			Employee: emp.FullName,
			File:     finalPath,
			Email:    emp.Email,
		})

		if params.SendEmails {
			// Pace sends so the upstream relay does not throttle us.
			if i > 0 && svc.Config.Paystub.EmailDelay.Duration > 0 {
				time.Sleep(svc.Config.Paystub.EmailDelay.Duration)
			}

			subject, body := mailer.PaystubTemplate(emp.FullName, params.Country)
			res := svc.Mailer.Send(mailer.Message{
				To:             emp.Email,
				Subject:        subject,
				Body:           body,
				AttachmentPath: finalPath,
				CC:             svc.Config.SMTP.CC,
			})
			emailResults = append(emailResults, EmailReport{
				Employee: emp.FullName,
				Email:    emp.Email,
				Status:   res.Status,
				Message:  res.Message,
			})
		}
	}

	emailsSent := 0
	for _, r := range emailResults {
		if r.Status == "success" {
			emailsSent++
		}
	}

	svc.recordRun(params, len(rows), len(generated), emailsSent, len(rowErrs), generated, emailResults)

	status := "success"
	message := "All records processed successfully"
	if len(rowErrs) > 0 {
		status = "partial_success"
		message = fmt.Sprintf("Processed with %d errors", len(rowErrs))
	}

	var errsField interface{}
	if len(rowErrs) > 0 {
		errsField = rowErrs
	}

	resp := fiber.Map{
		"status":             status,
		"employee_count":     len(rows),
		"generated_paystubs": len(generated),
		"emails_sent":        emailsSent,
		"errors":             errsField,
		"message":            message,
	}
	if svc.Config.Debug {
		resp["generated_files"] = generated
		resp["email_results"] = emailResults
	}

	requestID := c.Get("X-Request-ID")
	u.Info("Payroll processed",
		"company", params.Company,
		"country", params.Country,
		"employees", len(rows),
		"generated", len(generated),
		"emails_sent", emailsSent,
		"errors", len(rowErrs),
		"request_id", requestID,
	)

	return c.JSON(resp)
}

// recordRun writes the audit trail. Store failures are logged, never
// surfaced to the client.
func (svc *ProcessService) recordRun(params *ProcessParams, employees, generated, emailsSent, errCount int, files []GeneratedFile, emails []EmailReport) {
	if !svc.Store.Enabled() {
		return
	}

	run := store.ProcessRun{
		ID:                uuid.NewString(),
		Country:           params.Country,
		Company:           params.Company,
		EmployeeCount:     employees,
		GeneratedPaystubs: generated,
		EmailsSent:        emailsSent,
		ErrorCount:        errCount,
	}

	statusByEmail := make(map[string]string, len(emails))
	for _, e := range emails {
		statusByEmail[e.Email] = e.Status
	}

	records := make([]store.PaystubRecord, 0, len(files))
	for _, f := range files {
		records = append(records, store.PaystubRecord{
			EmployeeName: f.Employee,
			Email:        f.Email,
			File:         f.File,
			EmailStatus:  statusByEmail[f.Email],
		})
	}

	if err := svc.Store.RecordRun(run, records); err != nil {
		u.Error("Failed to record process run", "run_id", run.ID, "error", err)
	}
}

// Accepts every name FileName can emit, accented letters included.
var downloadRe = regexp.MustCompile(`^[\p{L}\p{N}_.-]+\.pdf$`)

// HandleDownload serves a previously generated paystub by file name.
func (svc *ProcessService) HandleDownload(c *fiber.Ctx) error {
	name := c.Params("name")
	if !downloadRe.MatchString(name) || strings.Contains(name, "..") {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid paystub name")
	}

	path := filepath.Join(svc.Config.Paystub.OutputDir, name)
	if _, err := os.Stat(path); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Paystub not found")
	}
	return c.Download(path)
}

// HandleChromeStats exposes basic observability for the Chrome pool.
func (svc *ProcessService) HandleChromeStats(c *fiber.Ctx) error {
	pool, err := svc.getChromePool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}

	// Pool disabled.
	if pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.PDF.ChromePoolSize,
			"profile_dir":    "",
			"timeout_secs":   svc.Config.PDF.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := pool.Stats(svc.Config.PDF.TimeoutSecs)
	return c.JSON(fiber.Map{
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"profile_dir":    s.ProfileDir,
		"timeout_secs":   svc.Config.PDF.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
