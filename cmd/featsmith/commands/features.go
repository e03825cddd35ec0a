package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/feature"
	"github.com/teranos/featsmith/pulse"
	"github.com/teranos/featsmith/pulse/emit"
)

// FeaturesCmd lists the feature catalog
var FeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "List the Move feature catalog",
	Long: `List every feature featsmith can generate, with the unit name prefix used
for its instances. Pass names to --features as listed here; underscores are
accepted in place of spaces.`,
	Args: cobra.NoArgs,
	RunE: runFeatures,
}

func runFeatures(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		data, err := json.Marshal(feature.All)
		if err != nil {
			return errors.Wrap(err, "failed to marshal features")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	rows := make([][]string, 0, len(feature.All))
	for i, f := range feature.All {
		rows = append(rows, []string{strconv.Itoa(i + 1), f, feature.UnitName(f, 0)})
	}
	pulse.EmitTable(emit.NewCLIEmitterTo(cmd.OutOrStdout(), 0),
		fmt.Sprintf("%d features", len(feature.All)),
		[]string{"#", "Feature", "First unit"}, rows)
	return nil
}
