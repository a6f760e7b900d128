// Command mmctl is the operator console, continuing
// gurre-prime-fix-md-go/fixclient/repl.go's chzyer/readline REPL idiom
// (NewPrefixCompleter tab completion, strings.Fields dispatch) but
// repointed at the running market maker's read-only dashboard HTTP
// surface (internal/httpapi) instead of raw FIX commands — FixSession is
// no longer quickfix-mediated and this process, not mmctl, owns it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8090", "base URL of the market maker's dashboard HTTP surface")
	flag.Parse()

	client := &httpClient{base: strings.TrimSuffix(*baseURL, "/"), http: &http.Client{Timeout: 5 * time.Second}}

	completer := readline.NewPrefixCompleter(
		readline.PcItem("status"),
		readline.PcItem("orders"),
		readline.PcItem("risk"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mmctl> ",
		HistoryFile:     "/tmp/mmctl_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		log.Printf("failed to create readline: %v", err)
		return
	}
	defer rl.Close()

	fmt.Printf("mmctl connected to %s. Type 'help' for commands.\n", client.base)

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "status":
			client.printStatus()
		case "orders":
			client.printOrders()
		case "risk":
			client.printRisk()
		case "help":
			printHelp()
		case "exit":
			return
		default:
			fmt.Println("Unknown command. Type 'help' for available commands.")
		}
	}
}

func printHelp() {
	fmt.Print(`Commands:
  status   - FIX session state, order count, duplicate fills skipped
  orders   - every order MemoryStore currently knows about
  risk     - live notional by side against the configured guard limits
  help     - this message
  exit     - quit mmctl
`)
}

type httpClient struct {
	base string
	http *http.Client
}

func (c *httpClient) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type statusView struct {
	FixState       string `json:"fix_state"`
	OrderCount     int    `json:"order_count"`
	DuplicateFills int64  `json:"duplicate_fills"`
}

func (c *httpClient) printStatus() {
	var s statusView
	if err := c.get("/status", &s); err != nil {
		fmt.Printf("status request failed: %v\n", err)
		return
	}
	fmt.Printf("FIX session: %s  |  orders tracked: %d  |  duplicate fills skipped: %d\n",
		s.FixState, s.OrderCount, s.DuplicateFills)
}

type orderView struct {
	ClientOrderID   string `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Status          string `json:"status"`
	Size            string `json:"size"`
	Price           string `json:"price"`
	FilledSize      string `json:"filled_size"`
}

func (c *httpClient) printOrders() {
	var orders []orderView
	if err := c.get("/orders", &orders); err != nil {
		fmt.Printf("orders request failed: %v\n", err)
		return
	}
	if len(orders) == 0 {
		fmt.Println("No orders tracked")
		return
	}

	fmt.Print(`
Orders:
┌──────────────────────┬─────────────┬──────┬───────────────┬───────────────┬───────────────┬─────────────┐
│ ClOrdID              │ Symbol      │ Side │ Size          │ Price         │ Status        │ Filled      │
├──────────────────────┼─────────────┼──────┼───────────────┼───────────────┼───────────────┼─────────────┤
`)
	for _, o := range orders {
		clOrdID := o.ClientOrderID
		if len(clOrdID) > 20 {
			clOrdID = clOrdID[:17] + "..."
		}
		price := o.Price
		if price == "" {
			price = "MARKET"
		}
		filled := o.FilledSize
		if filled == "" {
			filled = "0"
		}
		fmt.Printf("│ %-20s │ %-11s │ %-4s │ %-13s │ %-13s │ %-13s │ %-11s │\n",
			clOrdID, o.Symbol, o.Side, o.Size, price, o.Status, filled)
	}
	fmt.Println("└──────────────────────┴─────────────┴──────┴───────────────┴───────────────┴───────────────┴─────────────┘")
}

type riskView struct {
	ActiveOrders    int     `json:"active_orders"`
	BuyNotional     string  `json:"buy_notional"`
	SellNotional    string  `json:"sell_notional"`
	MaxOrdersPerSec int     `json:"max_orders_per_second"`
	PriceBandPct    float64 `json:"price_band_pct"`
}

func (c *httpClient) printRisk() {
	var r riskView
	if err := c.get("/risk", &r); err != nil {
		fmt.Printf("risk request failed: %v\n", err)
		return
	}
	fmt.Printf("active orders: %d  |  buy notional: %s  |  sell notional: %s  |  max orders/sec: %d  |  price band: %.2f%%\n",
		r.ActiveOrders, r.BuyNotional, r.SellNotional, r.MaxOrdersPerSec, r.PriceBandPct*100)
}
