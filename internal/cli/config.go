package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.opts.json {
				return app.writeJSON(app.cfg)
			}
			data, err := yaml.Marshal(app.cfg)
			if err != nil {
				return Exitf(ExitCodeFailure, "encode config: %v", err)
			}
			if used := app.loader.ConfigFileUsed(); used != "" {
				fmt.Fprintf(app.out, "# %s\n", used)
			}
			_, err = app.out.Write(data)
			return err
		},
	})
	return cmd
}
