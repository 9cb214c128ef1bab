package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trk-project/trk/internal/api"
	"github.com/trk-project/trk/internal/auth"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/JSON API server",
	Long: `Start an HTTP server exposing the tracker under /api/v1.
By default it listens on :8080. Use --addr to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := api.NewServer(svc, auth.NewAuthenticator(s), api.Config{
			PageSize:        viper.GetInt("page.issues"),
			UserPageSize:    viper.GetInt("page.users"),
			CommentPageSize: viper.GetInt("page.comments"),
			MaxPageSize:     viper.GetInt("page.max"),
		})

		addr := viper.GetString("serve.addr")
		ui.Info("Serving API at http://localhost%s/api/v1", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}
