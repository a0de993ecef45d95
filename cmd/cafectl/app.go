package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/asquebay/cafe-order-service/internal/api"
	"github.com/asquebay/cafe-order-service/internal/cart"
	"github.com/asquebay/cafe-order-service/internal/checkout"
	"github.com/asquebay/cafe-order-service/internal/config"
	"github.com/asquebay/cafe-order-service/internal/lib/logger"
	"github.com/asquebay/cafe-order-service/internal/model"
	"github.com/asquebay/cafe-order-service/internal/storage"
	"github.com/asquebay/cafe-order-service/internal/tracking"

	"github.com/urfave/cli/v2"
)

// env — всё, что нужно командам; собирается в Before
type env struct {
	log      *slog.Logger
	client   *api.Client
	kv       storage.KV
	cart     *cart.Store
	dest     model.Destination
	interval time.Duration
	out      io.Writer
}

func newApp(out, errOut io.Writer) *cli.App {
	defaults := config.Default().Client
	e := &env{out: out}

	return &cli.App{
		Name:      "cafectl",
		Usage:     "order food to your table or room",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a config file with a client section", EnvVars: []string{"CONFIG_PATH"}},
			&cli.StringFlag{Name: "api", Value: defaults.APIURL, Usage: "backend base URL", EnvVars: []string{"CAFE_CLIENT_API_URL"}},
			&cli.StringFlag{Name: "state-dir", Value: defaults.StateDir, Usage: "where the cart is kept", EnvVars: []string{"CAFE_CLIENT_STATE_DIR"}},
			&cli.DurationFlag{Name: "timeout", Value: defaults.Timeout, Usage: "request timeout"},
			&cli.StringFlag{Name: "table", Usage: "table id from the QR code"},
			&cli.StringFlag{Name: "room", Usage: "room id from the QR code"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Before: func(c *cli.Context) error {
			return e.init(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "menu",
				Usage:  "show the menu",
				Action: e.menu,
			},
			{
				Name:   "cart",
				Usage:  "show the cart",
				Action: e.showCart,
			},
			{
				Name:      "add",
				Usage:     "add a menu item to the cart",
				ArgsUsage: "ID",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "qty", Value: 1, Usage: "how many to add"}},
				Action:    e.add,
			},
			{
				Name:      "remove",
				Usage:     "take one item out of the cart",
				ArgsUsage: "ID",
				Action:    e.remove,
			},
			{
				Name:      "set",
				Usage:     "set the quantity of an item, 0 removes it",
				ArgsUsage: "ID N",
				Action:    e.set,
			},
			{
				Name:   "clear",
				Usage:  "empty the cart",
				Action: e.clear,
			},
			{
				Name:   "checkout",
				Usage:  "place an order with everything in the cart",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "note", Usage: "special instructions for the kitchen"}},
				Action: e.checkout,
			},
			{
				Name:      "track",
				Usage:     "show order status",
				ArgsUsage: "ID|LINK",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "watch", Usage: "keep polling until the order is completed or cancelled"},
					&cli.DurationFlag{Name: "interval", Usage: "polling interval"},
				},
				Action: e.track,
			},
			{
				Name:   "orders",
				Usage:  "list active orders for the table or room",
				Action: e.orders,
			},
			{
				Name:   "bill",
				Usage:  "settle all unpaid orders of the table or room",
				Action: e.bill,
			},
		},
	}
}

// init читает конфиг (если задан), затем флаги поверх него
func (e *env) init(c *cli.Context) error {
	clientCfg := config.Default().Client
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		clientCfg = cfg.Client
	}

	apiURL := clientCfg.APIURL
	if c.IsSet("api") {
		apiURL = c.String("api")
	}
	stateDir := clientCfg.StateDir
	if c.IsSet("state-dir") {
		stateDir = c.String("state-dir")
	}
	timeout := clientCfg.Timeout
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}
	e.interval = clientCfg.PollInterval

	e.log = logger.NewWithWriter(c.App.ErrWriter, c.String("log-level"), "text")

	e.dest = model.Destination{TableUniqueID: c.String("table"), RoomUniqueID: c.String("room")}
	if err := e.dest.Validate(); err != nil {
		return err
	}

	client, err := api.NewClient(apiURL, timeout, e.log)
	if err != nil {
		return err
	}
	e.client = client

	kv, err := storage.NewFileStore(stateDir)
	if err != nil {
		return err
	}
	e.kv = kv

	store, err := cart.NewStore(kv)
	if err != nil {
		return err
	}
	e.cart = store

	return nil
}

func (e *env) menu(c *cli.Context) error {
	items, err := e.client.ListMenu(c.Context)
	if err != nil {
		return errors.New(api.Describe(err, "Failed to load menu"))
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tIN CART")
	for _, it := range items {
		name := it.Name
		if !it.IsAvailable {
			name += " (unavailable)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", it.ID, name, it.Category, it.Price.StringFixed(2), inCart(e.cart.Quantity(it.ID)))
	}
	return w.Flush()
}

func inCart(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func (e *env) showCart(c *cli.Context) error {
	entries := e.cart.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(e.out, "Cart is empty")
		return nil
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE\tTOTAL")
	for _, en := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", en.ItemID, en.Name, en.Quantity, en.UnitPrice, en.LineTotal().StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Items: %d, total: %s\n", e.cart.TotalItems(), e.cart.TotalPrice().StringFixed(2))
	return nil
}

func (e *env) add(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	qty := c.Int("qty")
	if qty <= 0 {
		return fmt.Errorf("qty must be positive")
	}

	items, err := e.client.ListMenu(c.Context)
	if err != nil {
		return errors.New(api.Describe(err, "Failed to load menu"))
	}
	var item *model.MenuItem
	for i := range items {
		if items[i].ID == id {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return fmt.Errorf("menu item %d not found", id)
	}
	if !item.IsAvailable {
		return fmt.Errorf("%s is unavailable", item.Name)
	}

	for i := 0; i < qty; i++ {
		if err := e.cart.Add(*item); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.out, "Added %d x %s, cart has %d items\n", qty, item.Name, e.cart.TotalItems())
	return nil
}

func (e *env) remove(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	if err := e.cart.Decrement(id); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Cart has %d items\n", e.cart.TotalItems())
	return nil
}

func (e *env) set(c *cli.Context) error {
	id, err := argID(c, 0)
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(c.Args().Get(1))
	if err != nil {
		return fmt.Errorf("quantity must be a number")
	}
	if err := e.cart.SetQuantity(id, n); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Cart has %d items\n", e.cart.TotalItems())
	return nil
}

func (e *env) clear(c *cli.Context) error {
	if err := e.cart.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Cart is empty")
	return nil
}

func (e *env) checkout(c *cli.Context) error {
	placed := storage.NewFlag(e.kv, checkout.OrderPlacedFlagKey)
	submitter := checkout.NewSubmitter(e.cart, e.client, placed, e.log)

	res, err := submitter.Submit(c.Context, e.dest, c.String("note"))
	if err != nil {
		return errors.New(checkout.UserMessage(err))
	}

	fmt.Fprintf(e.out, "Order #%d placed, total %s\n", res.Order.ID, res.Order.TotalAmount.StringFixed(2))
	fmt.Fprintf(e.out, "Track it: %s\n", res.TrackingURL)
	return nil
}

func (e *env) track(c *cli.Context) error {
	arg := c.Args().First()
	if arg == "" {
		return fmt.Errorf("order id or tracking link is required")
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		id, _, err = tracking.ParseTrackingLink(arg)
		if err != nil {
			return err
		}
	}

	// баннер об успешном оформлении показываем один раз
	placed, err := storage.NewFlag(e.kv, checkout.OrderPlacedFlagKey).Take()
	if err != nil {
		e.log.Warn("failed to read order placed flag", slog.String("error", err.Error()))
	}
	if placed {
		fmt.Fprintln(e.out, "Your order has been placed!")
	}

	tracker := tracking.NewTracker(e.client, e.log)

	if !c.Bool("watch") {
		view, err := tracker.Fetch(c.Context, id)
		if err != nil {
			return trackingError(err)
		}
		printView(e.out, view)
		return nil
	}

	interval := e.interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}

	var last model.OrderStatus
	err = tracker.Watch(c.Context, id, interval, func(view tracking.View, err error) {
		if err != nil {
			if !errors.Is(err, tracking.ErrOrderNotFound) {
				fmt.Fprintln(e.out, trackingError(err))
			}
			return
		}
		if last == "" {
			printView(e.out, view)
		} else if view.Status != last {
			fmt.Fprintf(e.out, "Status: %s\n", statusLine(view))
		}
		last = view.Status
	})
	// Ctrl+C во время наблюдения — обычный выход
	if err != nil && c.Context.Err() == nil {
		return trackingError(err)
	}
	return nil
}

func trackingError(err error) error {
	return errors.New(tracking.UserMessage(err))
}

func printView(out io.Writer, v tracking.View) {
	fmt.Fprintf(out, "Order #%d (%s)\n", v.OrderID, v.Destination)
	fmt.Fprintf(out, "Status: %s\n", statusLine(v))
	if !v.Terminal {
		fmt.Fprintf(out, "Estimated time: %d min\n", v.EstimatedMinutes)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, it := range v.Items {
		fmt.Fprintf(w, "  %d x %s\t%s\n", it.Quantity, it.Name, it.LineTotal.StringFixed(2))
	}
	w.Flush()

	fmt.Fprintf(out, "Total: %s\n", v.Total.StringFixed(2))
	if v.SpecialInstructions != "" {
		fmt.Fprintf(out, "Instructions: %s\n", v.SpecialInstructions)
	}
}

func statusLine(v tracking.View) string {
	if v.Step == 0 {
		return string(v.Status)
	}
	return fmt.Sprintf("%s [step %d of %d]", v.Status, v.Step, v.TotalSteps)
}

func (e *env) orders(c *cli.Context) error {
	orders, err := e.client.ListOrders(c.Context, e.dest)
	if err != nil {
		return errors.New(api.Describe(err, "Failed to load orders"))
	}
	if len(orders) == 0 {
		fmt.Fprintln(e.out, "No active orders")
		return nil
	}

	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTOTAL\tPLACED")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", o.ID, o.Status, o.TotalAmount.StringFixed(2), o.CreatedAt.Local().Format("15:04"))
	}
	return w.Flush()
}

func (e *env) bill(c *cli.Context) error {
	if e.dest.IsZero() {
		return fmt.Errorf("--table or --room is required")
	}

	bill, err := e.client.GenerateBill(c.Context, e.dest)
	if err != nil {
		return errors.New(api.Describe(err, "Failed to generate bill"))
	}

	names := make([]string, 0, len(bill.Items))
	for name := range bill.Items {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(e.out, "Bill #%d (%s)\n", bill.ID, e.dest)
	w := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		line := bill.Items[name]
		fmt.Fprintf(w, "  %d x %s\t%s\n", line.Quantity, name, line.Total.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Total: %s\n", bill.BillTotal.StringFixed(2))
	return nil
}

func argID(c *cli.Context, n int) (int64, error) {
	id, err := strconv.ParseInt(c.Args().Get(n), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("menu item id must be a positive number")
	}
	return id, nil
}
