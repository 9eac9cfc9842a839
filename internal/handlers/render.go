package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"paystubs/internal/chrome"
	"paystubs/internal/payroll"
	"paystubs/internal/paystub"
	u "paystubs/internal/utils"
)

const renderMargin = 0.4

// renderPaystub produces the PDF bytes for one employee, consulting the
// Redis cache first. Identical rows render once per cache TTL.
func (svc *ProcessService) renderPaystub(c *fiber.Ctx, emp payroll.EmployeePayroll, company, country string) ([]byte, error) {
	cacheKey := computePaystubCacheKey(emp, company, country)

	if svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled {
		if cached, err := getCachedPDF(c, svc.Redis, cacheKey); err == nil && cached != nil {
			return cached, nil
		}
	}

	html, err := paystub.BuildHTML(emp, company, country, svc.Config.Paystub.LogoDir)
	if err != nil {
		return nil, err
	}

	render := svc.render
	if render == nil {
		render = svc.renderPDF
	}
	pdfBuf, err := render(html)
	if err != nil {
		return nil, err
	}

	if svc.Redis != nil && svc.Config.Cache.PDFCacheEnabled {
		setCachedPDF(c, svc.Redis, cacheKey, pdfBuf, svc.Config.Cache.PDFCacheTTL.Duration)
	}
	return pdfBuf, nil
}

// renderPDF renders HTML through the Chrome pool, retrying once after a
// pool restart when the session died underneath us. Falls back to a
// one-shot Chrome when the pool is disabled.
func (svc *ProcessService) renderPDF(html string) ([]byte, error) {
	pool, err := svc.getChromePool()
	if err != nil {
		return nil, err
	}

	paper := svc.paper()

	if pool == nil {
		return renderPDFWithChrome(html, paper, renderMargin, *svc.Config)
	}

	timeout := time.Duration(svc.Config.PDF.TimeoutSecs) * time.Second

	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(tab.Ctx, timeout)
		pdfBuf, renderErr := renderPDFInExistingTab(ctx, html, paper, renderMargin)
		cancel()

		pool.Release(tab, renderErr)
		return pdfBuf, renderErr
	}

	pdfBuf, renderErr := runOnce()
	if renderErr != nil && chrome.IsSessionInterrupted(renderErr) {
		u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", renderErr)
		_ = pool.Restart()
		return runOnce()
	}
	return pdfBuf, renderErr
}

// paper resolves the configured paper size, defaulting to US letter when
// the config is incomplete.
func (svc *ProcessService) paper() u.PaperSize {
	if p, ok := svc.Config.PDF.PaperSizes[svc.Config.PDF.DefaultPaper]; ok {
		return p
	}
	return u.PaperSize{Width: 8.5, Height: 11}
}

// computePaystubCacheKey creates a SHA256-based cache key from the row
// fields and branding parameters.
func computePaystubCacheKey(emp payroll.EmployeePayroll, company, country string) string {
	h := sha256.New()
	h.Write([]byte(emp.FullName))
	h.Write([]byte(emp.Email))
	h.Write([]byte(emp.Position))
	h.Write([]byte(emp.Period))
	for _, v := range []float64{
		emp.HealthDiscountAmount,
		emp.SocialDiscountAmount,
		emp.TaxesDiscountAmount,
		emp.OtherDiscountAmount,
		emp.GrossSalary,
		emp.GrossPayment,
		emp.NetPayment,
	} {
		h.Write([]byte(strconv.FormatFloat(v, 'f', 2, 64)))
	}
	h.Write([]byte(company))
	h.Write([]byte(country))
	return "paystub:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedPDF attempts to retrieve a cached PDF from Redis.
func getCachedPDF(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, err
	}

	u.Info("Paystub cache hit", "key", key)
	return cached, nil
}

// setCachedPDF stores a rendered PDF in Redis.
func setCachedPDF(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// renderPDFWithChrome starts a fresh headless Chrome for a single render.
func renderPDFWithChrome(html string, paper u.PaperSize, margin float64, cfg u.Config) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "chromedata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chrome.AllocatorOptions(cfg, tmpDir)...)
	defer allocCancel()

	chromeCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := time.Duration(cfg.PDF.TimeoutSecs) * time.Second
	chromeCtx, cancel = context.WithTimeout(chromeCtx, timeout)
	defer cancel()

	return renderPDFInExistingTab(chromeCtx, html, paper, margin)
}

// renderPDFInExistingTab renders raw HTML into PDF within a pre-existing
// chromedp tab.
func renderPDFInExistingTab(ctx context.Context, html string, paper u.PaperSize, margin float64) ([]byte, error) {
	var pdfBuf []byte

	actions := []chromedp.Action{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(200 * time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBuf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(paper.Width).
				WithPaperHeight(paper.Height).
				WithMarginTop(margin).
				WithMarginBottom(margin).
				WithMarginLeft(margin).
				WithMarginRight(margin).
				Do(ctx)
			return err
		}),
	}

	if err := chromedp.Run(ctx, actions...); err != nil {
		return nil, err
	}
	return pdfBuf, nil
}
