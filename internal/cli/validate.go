package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopworks/sched/internal/shopfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate <shop-file>",
	Short: "Check a shop file without solving",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shop, _, _, err := shopfile.Load(args[0])
		if err != nil {
			return err
		}

		tasks := 0
		for i := range shop.Jobs {
			tasks += len(shop.Jobs[i].Tasks)
		}
		fmt.Printf("OK: %d jobs, %d tasks, %d machines, %d operators, %d zones\n",
			len(shop.Jobs), tasks, len(shop.Machines), len(shop.Operators), len(shop.Zones))
		return nil
	},
}
