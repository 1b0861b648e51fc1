package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"bybithist/internal/history"
)

const historyURL = "https://www.bybit.com/derivatives/en/history-data"

// Config controls the chromedp session.
type Config struct {
	// Headless runs the browser without a window. Disable to watch the walk.
	Headless bool

	// StagingDir is where the browser deposits completed downloads.
	StagingDir string

	// ActionTimeout bounds every individual UI action.
	ActionTimeout time.Duration

	// NavigateTimeout bounds the initial page load, which is much slower
	// than any in-page action.
	NavigateTimeout time.Duration
}

// Chrome drives the Bybit history-data UI through a headless Chrome session.
// One Chrome value is one browser session; it is recreated, not reused, after
// a fatal failure.
type Chrome struct {
	cfg    Config
	logger *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	// The site nests the Spot/Contract entry buttons under each dataset
	// card, so the market chosen here is applied when the dataset card is
	// opened.
	market history.Market
}

// NewChrome creates an unopened session driver.
func NewChrome(cfg Config, logger *slog.Logger) *Chrome {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 30 * time.Second
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 2 * time.Minute
	}
	return &Chrome{cfg: cfg, logger: logger}
}

// Open launches the browser and routes downloads into the staging directory.
func (c *Chrome) Open(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	bctx, cancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(bctx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(c.cfg.StagingDir).
			WithEventsEnabled(true),
	); err != nil {
		cancel()
		allocCancel()
		return Fatal("open session", err)
	}

	c.ctx = bctx
	c.cancel = cancel
	c.allocCancel = allocCancel
	c.logger.Info("browser session opened",
		slog.Bool("headless", c.cfg.Headless),
		slog.String("staging_dir", c.cfg.StagingDir))
	return nil
}

// Close tears the browser down. Safe to call repeatedly.
func (c *Chrome) Close() error {
	if c.ctx == nil {
		return nil
	}
	c.cancel()
	c.allocCancel()
	c.ctx = nil
	c.logger.Info("browser session closed")
	return nil
}

// SelectMarket loads the history page and records the market segment. The
// actual market click happens in SelectDataset because the site groups the
// Spot/Contract buttons under each dataset card.
func (c *Chrome) SelectMarket(ctx context.Context, market history.Market) error {
	c.market = market
	return c.run(ctx, "select market", c.cfg.NavigateTimeout,
		chromedp.Navigate(historyURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// SelectDataset hovers the dataset card and clicks the market entry under it.
func (c *Chrome) SelectDataset(ctx context.Context, dataset history.Dataset) error {
	card := datasetCard(dataset)
	nth := marketEntryIndex(c.market, dataset)
	return c.run(ctx, "select dataset", c.cfg.ActionTimeout,
		evalOK(jsHover(card), "hover dataset card"),
		chromedp.Sleep(400*time.Millisecond),
		evalOK(jsClickNth(marketLabel(c.market), nth), "click market entry"),
	)
}

// SelectSymbol types into the antd symbol selector and picks the exact match
// from the filtered dropdown, then pins the export cycle to Everyday so the
// platform emits one file per day of the range.
func (c *Chrome) SelectSymbol(ctx context.Context, symbol string) error {
	return c.run(ctx, "select symbol", c.cfg.ActionTimeout,
		chromedp.WaitVisible(`.ant-select-selection-overflow`, chromedp.ByQuery),
		chromedp.Click(`.ant-select-selection-overflow`, chromedp.ByQuery),
		chromedp.SendKeys(`#rc_select_0`, symbol, chromedp.ByID),
		chromedp.Sleep(400*time.Millisecond),
		evalOK(jsSelectOption(symbol), "pick symbol option"),
		chromedp.Click(`.ant-select-selector > .ant-select-selection-item`, chromedp.ByQuery),
		evalOK(jsSelectOption("Everyday"), "pick export cycle"),
	)
}

// SetDateRange fills the range picker and confirms it.
func (c *Chrome) SetDateRange(ctx context.Context, start, end time.Time) error {
	const (
		startSel = `input[placeholder="Start date"]`
		endSel   = `input[placeholder="End date"]`
	)
	return c.run(ctx, "set date range", c.cfg.ActionTimeout,
		chromedp.Click(startSel, chromedp.ByQuery),
		chromedp.SetValue(startSel, start.Format(history.DateLayout), chromedp.ByQuery),
		chromedp.SendKeys(startSel, kb.Enter, chromedp.ByQuery),
		chromedp.Click(endSel, chromedp.ByQuery),
		chromedp.SetValue(endSel, end.Format(history.DateLayout), chromedp.ByQuery),
		chromedp.SendKeys(endSel, kb.Enter, chromedp.ByQuery),
		evalOK(jsClickText("Confirm"), "confirm date range"),
	)
}

// TriggerExport waits for the export listing to render and clicks Download.
// A listing that never renders is reported as ErrNoData, classified
// transient: the workflow retries, and a range that genuinely has nothing
// exhausts its attempts and fails the chunk.
func (c *Chrome) TriggerExport(ctx context.Context) error {
	var visible bool
	err := c.run(ctx, "await export listing", c.cfg.ActionTimeout,
		chromedp.Poll(jsTextVisible("Detail"), &visible,
			chromedp.WithPollingInterval(250*time.Millisecond)),
	)
	if err != nil {
		if !IsFatal(err) && errors.Is(err, context.DeadlineExceeded) {
			return Transient("trigger export", ErrNoData)
		}
		return err
	}
	return c.run(ctx, "trigger export", c.cfg.ActionTimeout,
		evalOK(jsClickText("Download"), "click download"),
	)
}

// ListSymbols opens the symbol dropdown for a market and collects every
// option by scrolling the virtualized list until it stops making progress.
func (c *Chrome) ListSymbols(ctx context.Context, market history.Market) ([]string, error) {
	if err := c.SelectMarket(ctx, market); err != nil {
		return nil, err
	}
	if err := c.SelectDataset(ctx, history.DatasetTrades); err != nil {
		return nil, err
	}
	if err := c.run(ctx, "open symbol dropdown", c.cfg.ActionTimeout,
		chromedp.WaitVisible(`.ant-select`, chromedp.ByQuery),
		chromedp.Click(`.ant-select`, chromedp.ByQuery),
		chromedp.WaitVisible(`.ant-select-item-option-content`, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	// Cap the scroll loop; a dropdown that never reaches the bottom still
	// terminates once nothing new shows up.
	for i, idle := 0, 0; i < 2000 && idle < 5; i++ {
		var page scrollPage
		if err := c.run(ctx, "scroll symbol dropdown", c.cfg.ActionTimeout,
			chromedp.Evaluate(jsScrollCollect, &page),
		); err != nil {
			return nil, err
		}
		progress := false
		for _, t := range page.Texts {
			if t == "" {
				continue
			}
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				progress = true
			}
		}
		if page.After >= page.Height-page.Client-2 {
			break
		}
		if !progress && page.After <= page.Before {
			idle++
		} else {
			idle = 0
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// run executes actions under the session context with a per-action timeout,
// honouring caller cancellation, and classifies whatever comes back.
func (c *Chrome) run(ctx context.Context, action string, timeout time.Duration, actions ...chromedp.Action) error {
	if c.ctx == nil {
		return Fatal(action, errors.New("session not open"))
	}
	tctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(tctx, actions...)
	return c.classify(ctx, action, err)
}

func (c *Chrome) classify(ctx context.Context, action string, err error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		// Caller cancellation is neither transient nor fatal; it propagates
		// untouched so the orchestrator can route through teardown.
		return ctx.Err()
	case c.ctx.Err() != nil:
		return Fatal(action, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Transient(action, err)
	case isSessionError(err):
		return Fatal(action, err)
	default:
		return Transient(action, err)
	}
}

// isSessionError spots devtools transport failures that mean the browser
// process is gone rather than merely slow.
func isSessionError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"target closed",
		"browser closed",
		"websocket",
		"connection reset",
		"broken pipe",
		"context canceled",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func datasetCard(d history.Dataset) string {
	if d == history.DatasetTrades {
		return "Public Trading History"
	}
	return "OrderBook"
}

func marketLabel(m history.Market) string {
	if m == history.MarketSpot {
		return "Spot"
	}
	return "Contract"
}

// marketEntryIndex is the position of the market button among same-text
// nodes once the dataset card is open, measured against the live site.
func marketEntryIndex(m history.Market, d history.Dataset) int {
	switch {
	case m == history.MarketContract && d == history.DatasetTrades:
		return 1
	case m == history.MarketSpot && d == history.DatasetTrades:
		return 3
	default:
		return 4
	}
}

type scrollPage struct {
	Texts  []string `json:"texts"`
	Before float64  `json:"before"`
	After  float64  `json:"after"`
	Height float64  `json:"height"`
	Client float64  `json:"client"`
}

// evalOK runs a JS snippet that returns a boolean and fails the action when
// the snippet could not find its target. The failure is ordinary and
// retryable; antd renders its dropdowns lazily.
func evalOK(js, action string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ok bool
		if err := chromedp.Evaluate(js, &ok).Do(ctx); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: element not found", action)
		}
		return nil
	})
}

func jsHover(text string) string {
	return fmt.Sprintf(`(() => {
	const el = [...document.querySelectorAll('*')]
		.find(e => e.childElementCount === 0 && e.textContent.trim() === %q);
	if (!el) return false;
	el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
	return true;
})()`, text)
}

func jsClickText(text string) string {
	return jsClickNth(text, 0)
}

func jsClickNth(text string, nth int) string {
	return fmt.Sprintf(`(() => {
	const els = [...document.querySelectorAll('*')]
		.filter(e => e.childElementCount === 0 && e.textContent.trim() === %q);
	const el = els[%d];
	if (!el) return false;
	el.click();
	return true;
})()`, text, nth)
}

func jsTextVisible(text string) string {
	return fmt.Sprintf(`[...document.querySelectorAll('*')]
	.some(e => e.childElementCount === 0 && e.textContent.trim() === %q)`, text)
}

// jsSelectOption clicks the exact option inside the visible antd dropdown.
func jsSelectOption(text string) string {
	return fmt.Sprintf(`(() => {
	const dd = document.querySelector('.ant-select-dropdown:not(.ant-select-dropdown-hidden)');
	if (!dd) return false;
	const opt = [...dd.querySelectorAll('.ant-select-item-option-content')]
		.find(o => o.textContent.trim() === %q);
	if (!opt) return false;
	const row = opt.closest('.ant-select-item-option') || opt;
	row.click();
	return true;
})()`, text)
}

const jsScrollCollect = `(() => {
	const dd = document.querySelector('.ant-select-dropdown:not(.ant-select-dropdown-hidden)');
	if (!dd) return {texts: [], before: 0, after: 0, height: 0, client: 0};
	const texts = [...dd.querySelectorAll('.ant-select-item-option-content')]
		.map(e => e.textContent.trim());
	const holder = dd.querySelector('.rc-virtual-list-holder') || dd;
	const before = holder.scrollTop;
	holder.scrollTop = before + holder.clientHeight * 0.9;
	return {texts, before, after: holder.scrollTop,
		height: holder.scrollHeight, client: holder.clientHeight};
})()`
