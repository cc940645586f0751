package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(abortCmd)

	// Put flags
	putCmd.Flags().StringP("queue", "q", "", "queue name (required)")
	putCmd.Flags().StringP("job", "d", "{}", "job payload (JSON)")
	putCmd.Flags().Uint32P("pri", "p", 0, "job priority")
	putCmd.MarkFlagRequired("queue")

	// Get flags
	getCmd.Flags().StringSliceP("queue", "q", nil, "queue to take from (repeatable, required)")
	getCmd.Flags().BoolP("wait", "w", false, "block until a job is available")
	getCmd.MarkFlagRequired("queue")
}

var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Put a job onto a queue",
	Run: func(cmd *cobra.Command, args []string) {
		queue, _ := cmd.Flags().GetString("queue")
		payload, _ := cmd.Flags().GetString("job")
		pri, _ := cmd.Flags().GetUint32("pri")

		// Validate JSON
		var job any
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			fail(fmt.Sprintf("Invalid JSON payload: %v", err))
			return
		}

		client, err := NewBrokerClient()
		if err != nil {
			fail(err.Error())
			return
		}
		defer client.Close()

		resp, err := client.Do(map[string]any{
			"request": "put",
			"queue":   queue,
			"job":     job,
			"pri":     pri,
		})
		if err != nil {
			fail(fmt.Sprintf("Put failed: %v", err))
			return
		}

		if resp["status"] != "ok" {
			fail(fmt.Sprintf("Broker answered %v", resp["status"]))
			return
		}
		success(fmt.Sprintf("Queued job %v on %s (pri %d)", resp["id"], cyan(queue), pri))
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Take the highest-priority job from a set of queues",
	Long: `Takes the single highest-priority job across the given queues and
prints it. The job stays assigned to this invocation's connection; since
the connection closes when the command exits, the job returns to its queue
immediately. Use this to inspect queue heads, not to consume work.`,
	Run: func(cmd *cobra.Command, args []string) {
		queues, _ := cmd.Flags().GetStringSlice("queue")
		wait, _ := cmd.Flags().GetBool("wait")

		client, err := NewBrokerClient()
		if err != nil {
			fail(err.Error())
			return
		}
		defer client.Close()

		resp, err := client.Do(map[string]any{
			"request": "get",
			"queues":  queues,
			"wait":    wait,
		})
		if err != nil {
			fail(fmt.Sprintf("Get failed: %v", err))
			return
		}

		switch resp["status"] {
		case "ok":
			data, _ := json.Marshal(resp["job"])
			success(fmt.Sprintf("Job %v (pri %v) from %s", resp["id"], resp["pri"], cyan(fmt.Sprint(resp["queue"]))))
			fmt.Println(string(data))
		case "no-job":
			info("No job available")
		default:
			fail(fmt.Sprintf("Broker answered %v", resp["status"]))
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a job anywhere in the broker by id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var id uint32
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			fail(fmt.Sprintf("Invalid id %q", args[0]))
			return
		}

		client, err := NewBrokerClient()
		if err != nil {
			fail(err.Error())
			return
		}
		defer client.Close()

		resp, err := client.Do(map[string]any{
			"request": "delete",
			"id":      id,
		})
		if err != nil {
			fail(fmt.Sprintf("Delete failed: %v", err))
			return
		}

		switch resp["status"] {
		case "ok":
			success(fmt.Sprintf("Deleted job %d", id))
		case "no-job":
			info(fmt.Sprintf("No job with id %d", id))
		default:
			fail(fmt.Sprintf("Broker answered %v", resp["status"]))
		}
	},
}

var abortCmd = &cobra.Command{
	Use:   "abort <id>",
	Short: "Abort a held job back onto its queue",
	Long: `Abort only applies to jobs held by the aborting connection, so a
fresh CLI connection holds nothing and the broker answers with an error.
Provided for completeness and protocol testing.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var id uint32
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			fail(fmt.Sprintf("Invalid id %q", args[0]))
			return
		}

		client, err := NewBrokerClient()
		if err != nil {
			fail(err.Error())
			return
		}
		defer client.Close()

		resp, err := client.Do(map[string]any{
			"request": "abort",
			"id":      id,
		})
		if err != nil {
			fail(fmt.Sprintf("Abort failed: %v", err))
			return
		}

		switch resp["status"] {
		case "ok":
			success(fmt.Sprintf("Aborted job %d", id))
		case "no-job":
			info(fmt.Sprintf("Job %d is no longer held", id))
		default:
			fail("Broker refused: this connection does not hold that job")
		}
	},
}
