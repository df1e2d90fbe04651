// Command heatspreaderctl is a CLI client for the heatspreader REST API:
// register, inspect, and adjust multicloud stacks and their per-cloud
// weights.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/acticloud/heatspreader/pkg/store/remotestore"
	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	server  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "heatspreaderctl",
	Short:   "heatspreaderctl manages multicloud stacks over the heatspreader REST API",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&server, "server", "http://127.0.0.1:8080", "heatspreader server address")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON instead of a table")

	rootCmd.AddCommand(stackCmd)
	rootCmd.AddCommand(weightCmd)
}

func client() *remotestore.Store {
	return remotestore.Open(server, 10*time.Second)
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "manage multicloud stacks",
}

func init() {
	stackAddCmd.Flags().Int("count", 0, "initial desired count")
	stackAddCmd.Flags().String("parameter", "", "the count parameter name")
	stackAddCmd.MarkFlagRequired("count")
	stackAddCmd.MarkFlagRequired("parameter")

	stackCmd.AddCommand(stackAddCmd, stackListCmd, stackShowCmd, stackUpdateCmd, stackDeleteCmd)
}

var stackAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "add a multicloud stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		param, _ := cmd.Flags().GetString("parameter")

		st := &types.MulticloudStack{
			StackName:      args[0],
			Count:          count,
			CountParameter: param,
			Weights:        map[string]float64{},
		}

		if err := client().Create(context.Background(), st); err != nil {
			return err
		}
		return printStack(cmd, st)
	},
}

var stackListCmd = &cobra.Command{
	Use:   "list",
	Short: "list all stacks",
	RunE: func(cmd *cobra.Command, args []string) error {
		stacks, err := client().List(context.Background())
		if err != nil {
			return err
		}
		return printStacks(cmd, stacks)
	},
}

var stackShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "show a single stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client().Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printStack(cmd, st)
	},
}

var stackUpdateCmd = &cobra.Command{
	Use:   "update NAME",
	Short: "update a stack's count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		c := client()
		ctx := context.Background()
		st, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		st.Count = count
		if err := c.Update(ctx, st); err != nil {
			return err
		}
		return printStack(cmd, st)
	},
}

func init() {
	stackUpdateCmd.Flags().Int("count", 0, "new desired count")
	stackUpdateCmd.MarkFlagRequired("count")
}

var stackDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "delete a stack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client().Delete(context.Background(), args[0])
	},
}

var weightCmd = &cobra.Command{
	Use:   "weight",
	Short: "manage a stack's per-cloud weights",
}

func init() {
	weightSetCmd.Flags().Float64("weight", 0, "the scaling weight, between 0 and 1")
	weightSetCmd.MarkFlagRequired("weight")

	weightCmd.AddCommand(weightSetCmd, weightRemoveCmd)
}

var weightSetCmd = &cobra.Command{
	Use:   "set STACK CLOUD",
	Short: "add or update a cloud's weight",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		weight, _ := cmd.Flags().GetFloat64("weight")
		c := client()
		if err := c.SetWeight(context.Background(), args[0], args[1], weight); err != nil {
			return err
		}
		st, err := c.Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printStack(cmd, st)
	},
}

var weightRemoveCmd = &cobra.Command{
	Use:   "remove STACK CLOUD",
	Short: "remove a cloud from a stack's weights",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return client().RemoveWeight(context.Background(), args[0], args[1])
	},
}

// jsonStack mirrors pkg/rest's wire format, so --json output matches
// what the REST API itself would hand back for the same stack.
type jsonStack struct {
	StackName      string             `json:"stack_name"`
	Count          int                `json:"count"`
	CountParameter string             `json:"count_parameter"`
	Weights        map[string]float64 `json:"weights"`
	CloudOrder     []string           `json:"cloud_order,omitempty"`
}

func toJSONStack(st *types.MulticloudStack) jsonStack {
	return jsonStack{
		StackName:      st.StackName,
		Count:          st.Count,
		CountParameter: st.CountParameter,
		Weights:        st.Weights,
		CloudOrder:     st.Clouds(),
	}
}

func printStack(cmd *cobra.Command, st *types.MulticloudStack) error {
	if asJSON(cmd) {
		return json.NewEncoder(os.Stdout).Encode(toJSONStack(st))
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOUNT\tPARAMETER\tWEIGHTS")
	fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", st.StackName, st.Count, st.CountParameter, formatWeights(st))
	return w.Flush()
}

func printStacks(cmd *cobra.Command, stacks []*types.MulticloudStack) error {
	if asJSON(cmd) {
		out := make([]jsonStack, 0, len(stacks))
		for _, st := range stacks {
			out = append(out, toJSONStack(st))
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOUNT\tPARAMETER\tWEIGHTS")
	for _, st := range stacks {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", st.StackName, st.Count, st.CountParameter, formatWeights(st))
	}
	return w.Flush()
}

// asJSON reports whether the caller asked for --json output instead of
// the default table view.
func asJSON(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func formatWeights(st *types.MulticloudStack) string {
	out := ""
	for i, cloud := range st.Clouds() {
		if i > 0 {
			out += ","
		}
		out += cloud + "=" + strconv.FormatFloat(st.Weights[cloud], 'g', -1, 64)
	}
	return out
}
