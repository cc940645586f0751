package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(watchCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show broker queue depths and counters",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewAPIClient()

		var stats struct {
			Queues     map[string]int   `json:"queues"`
			ActiveJobs int              `json:"active_jobs"`
			Waiters    int              `json:"waiters"`
			NextID     uint32           `json:"next_id"`
			Metrics    map[string]int64 `json:"metrics"`
		}
		if err := client.Get("/api/stats", &stats); err != nil {
			fail(fmt.Sprintf("Failed to fetch stats: %v", err))
			return
		}

		fmt.Println(bold("📋 Queues"))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDEPTH")
		fmt.Fprintln(w, "----\t-----")
		names := make([]string, 0, len(stats.Queues))
		for name := range stats.Queues {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%d\n", cyan(name), stats.Queues[name])
		}
		w.Flush()

		fmt.Println()
		fmt.Printf("Active jobs: %d  Waiters: %d  Next id: %d\n",
			stats.ActiveJobs, stats.Waiters, stats.NextID)

		fmt.Println()
		fmt.Println(bold("📈 Counters"))
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		metricNames := make([]string, 0, len(stats.Metrics))
		for name := range stats.Metrics {
			metricNames = append(metricNames, name)
		}
		sort.Strings(metricNames)
		for _, name := range metricNames {
			fmt.Fprintf(w, "%s\t%d\n", name, stats.Metrics[name])
		}
		w.Flush()
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live job events from the broker",
	Run: func(cmd *cobra.Command, args []string) {
		base := viper.GetString("monitor")
		u, err := url.Parse(base)
		if err != nil {
			fail(fmt.Sprintf("Invalid monitor URL %q: %v", base, err))
			return
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = "/ws"

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			fail(fmt.Sprintf("Failed to connect to %s: %v", u.String(), err))
			return
		}
		defer conn.Close()

		info(fmt.Sprintf("Watching %s (ctrl-c to stop)", u.String()))
		for {
			var event struct {
				Type      string `json:"type"`
				JobID     uint32 `json:"job_id"`
				Queue     string `json:"queue"`
				Pri       uint32 `json:"pri"`
				Timestamp string `json:"timestamp"`
			}
			if err := conn.ReadJSON(&event); err != nil {
				fail(fmt.Sprintf("Stream closed: %v", err))
				return
			}

			line, _ := json.Marshal(event)
			fmt.Printf("%s %s\n", yellow(event.Type), line)
		}
	},
}
