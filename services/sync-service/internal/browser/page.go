// Package browser drives the calendar web app through a headless Chrome
// session. A Page is a single tab and must not be used concurrently: the hover
// menu it reads is shared page state.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/md-rashed-zaman/calendarsync/services/sync-service/internal/calendar"
)

const (
	emailSelector    = `#email`
	passwordSelector = `input[type="password"]`
	submitSelector   = `#button-manual-submit`

	calendarBodySelector = `.v-calendar-daily__body`
	eventSelector        = `.v-calendar-daily__body .v-event-timed.primary.white--text`
	cardSelector         = `.v-event-draggable`
	overlaySelector      = `div.v-menu__content.menuable__content__active`
	nextWeekSelector     = `button.py-0.ivu-btn.ivu-btn-default span strong.mx-2 i.fa-angle-right`
)

type Config struct {
	BaseURL  string
	Email    string
	Password string

	Headless bool
	ExecPath string

	// OverlaySettle is how long to wait after hovering before reading the
	// menu. Too short reads nothing or the previous element's menu.
	OverlaySettle    time.Duration
	NavigationSettle time.Duration
	CalendarSettle   time.Duration
	WaitTimeout      time.Duration
}

type Page struct {
	cfg    Config
	logger *slog.Logger

	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	nodes map[int64]*cdp.Node
}

// Launch starts the browser process and opens one tab. The session lives
// until Close, independently of ctx, so shutdown can close it in order.
func Launch(ctx context.Context, cfg Config, logger *slog.Logger) (*Page, error) {
	if cfg.OverlaySettle <= 0 {
		cfg.OverlaySettle = 250 * time.Millisecond
	}
	if cfg.NavigationSettle <= 0 {
		cfg.NavigationSettle = 2 * time.Second
	}
	if cfg.CalendarSettle <= 0 {
		cfg.CalendarSettle = 3 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1600, 1000),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	p := &Page{
		cfg:         cfg,
		logger:      logger,
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		nodes:       map[int64]*cdp.Node{},
	}
	// The first Run allocates the browser and binds it to the context it is
	// given, so it must be the long-lived tab context, not a timeout child.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-ctx.Done():
		p.Close()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}
	return p, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (p *Page) Close() error {
	if p == nil || p.cancelAlloc == nil {
		return nil
	}
	err := chromedp.Cancel(p.ctx)
	p.cancelTab()
	p.cancelAlloc()
	p.cancelAlloc = nil
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// run executes actions on the tab. ctx bounds the call; the tab itself
// outlives it.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *Page) Login(ctx context.Context) error {
	p.logger.Info("opening calendar login", "url", p.cfg.BaseURL+"/login")
	err := p.run(ctx, 2*p.cfg.WaitTimeout,
		chromedp.Navigate(p.cfg.BaseURL+"/login"),
		chromedp.WaitVisible(emailSelector, chromedp.ByQuery),
		chromedp.SendKeys(emailSelector, p.cfg.Email, chromedp.ByQuery),
		chromedp.WaitVisible(passwordSelector, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, p.cfg.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
		chromedp.WaitNotPresent(emailSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	p.logger.Info("calendar session started")
	return nil
}

// OpenCalendar loads the calendar on the current week and waits for it to render.
func (p *Page) OpenCalendar(ctx context.Context) error {
	err := p.run(ctx, p.cfg.WaitTimeout+p.cfg.CalendarSettle+5*time.Second,
		chromedp.Navigate(p.cfg.BaseURL+"/calendar"),
		chromedp.WaitVisible(calendarBodySelector, chromedp.ByQuery),
		chromedp.Sleep(p.cfg.CalendarSettle),
	)
	if err != nil {
		return fmt.Errorf("open calendar: %w", err)
	}
	return nil
}

// VisibleEvents lists appointment elements in document order. Handles from a
// previous call are invalidated.
func (p *Page) VisibleEvents(ctx context.Context) ([]calendar.Event, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, p.cfg.WaitTimeout+5*time.Second,
		chromedp.WaitVisible(calendarBodySelector, chromedp.ByQuery),
		chromedp.Nodes(eventSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	p.nodes = make(map[int64]*cdp.Node, len(nodes))
	events := make([]calendar.Event, 0, len(nodes))
	for i, n := range nodes {
		id := int64(n.NodeID)
		p.nodes[id] = n
		events = append(events, calendar.Event{Index: i, NodeID: id})
	}
	return events, nil
}

func (p *Page) node(ev calendar.Event) (*cdp.Node, error) {
	n, ok := p.nodes[ev.NodeID]
	if !ok {
		return nil, fmt.Errorf("event %d: stale element handle", ev.Index)
	}
	return n, nil
}

func (p *Page) CardFields(ctx context.Context, ev calendar.Event) (calendar.CardFields, error) {
	n, err := p.node(ev)
	if err != nil {
		return calendar.CardFields{}, err
	}

	var html string
	var cards []*cdp.Node
	err = p.run(ctx, p.cfg.WaitTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			html, err = dom.GetOuterHTML().WithNodeID(n.NodeID).Do(ctx)
			return err
		}),
		chromedp.Nodes(cardSelector, &cards, chromedp.ByQuery, chromedp.FromNode(n), chromedp.AtLeast(0)),
	)
	if err != nil {
		return calendar.CardFields{}, fmt.Errorf("event %d: read card: %w", ev.Index, err)
	}

	fields, err := parseCard(html)
	if err != nil {
		return calendar.CardFields{}, fmt.Errorf("event %d: %w", ev.Index, err)
	}
	if len(cards) > 0 {
		if bg, err := p.backgroundColor(ctx, cards[0].NodeID); err == nil && bg != "" {
			fields.Background = bg
		}
	}
	return fields, nil
}

func (p *Page) backgroundColor(ctx context.Context, id cdp.NodeID) (string, error) {
	var props []*css.ComputedStyleProperty
	if err := p.run(ctx, p.cfg.WaitTimeout,
		chromedp.ComputedStyle([]cdp.NodeID{id}, &props, chromedp.ByNodeID),
	); err != nil {
		return "", err
	}
	for _, prop := range props {
		if prop.Name == "background-color" {
			return prop.Value, nil
		}
	}
	return "", nil
}

// Reveal hovers the element, waits OverlaySettle and reads the open menu. An
// absent menu is returned as an empty Overlay.
func (p *Page) Reveal(ctx context.Context, ev calendar.Event) (calendar.Overlay, error) {
	n, err := p.node(ev)
	if err != nil {
		return calendar.Overlay{}, err
	}

	var menus []*cdp.Node
	var html string
	err = p.run(ctx, p.cfg.WaitTimeout+p.cfg.OverlaySettle,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
				return err
			}
			box, err := dom.GetBoxModel().WithNodeID(n.NodeID).Do(ctx)
			if err != nil {
				return err
			}
			x, y := center(box.Content)
			return chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx)
		}),
		chromedp.Sleep(p.cfg.OverlaySettle),
		chromedp.Nodes(overlaySelector, &menus, chromedp.ByQuery, chromedp.AtLeast(0)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(menus) == 0 {
				return nil
			}
			var err error
			html, err = dom.GetOuterHTML().WithNodeID(menus[0].NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return calendar.Overlay{}, fmt.Errorf("event %d: reveal overlay: %w", ev.Index, err)
	}
	if html == "" {
		return calendar.Overlay{}, nil
	}
	return parseOverlay(html)
}

func (p *Page) NextWeek(ctx context.Context) error {
	err := p.run(ctx, p.cfg.WaitTimeout+p.cfg.NavigationSettle,
		chromedp.Click(nextWeekSelector, chromedp.ByQuery),
		chromedp.Sleep(p.cfg.NavigationSettle),
	)
	if err != nil {
		return fmt.Errorf("next week: %w", err)
	}
	return nil
}

// Ping checks the tab still answers script evaluation.
func (p *Page) Ping(ctx context.Context) error {
	var state string
	return p.run(ctx, 2*time.Second, chromedp.Evaluate(`document.readyState`, &state))
}

func center(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}
