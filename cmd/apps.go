package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/droidpilot/internal/device"
)

// newAppsCmd lists the app names LAUNCH understands, or resolves the given
// names to packages.
func newAppsCmd() *cobra.Command {
	var zh bool

	cmd := &cobra.Command{
		Use:   "apps [name...]",
		Short: "List launchable app names or resolve names to packages",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				names := device.SupportedApps()
				if zh {
					names = device.ChineseAppNames()
				}
				for _, name := range names {
					pkg, _ := device.FindPackage(name)
					fmt.Fprintf(out, "%-24s %s\n", name, pkg)
				}
				return nil
			}

			var unknown []string
			for _, name := range args {
				pkg, ok := device.FindPackage(name)
				if !ok {
					unknown = append(unknown, name)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", name, pkg)
			}
			if len(unknown) > 0 {
				return fmt.Errorf("unknown app: %s", strings.Join(unknown, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&zh, "zh", false, "list the Chinese app names")
	return cmd
}
