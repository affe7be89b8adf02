package cmd

import (
	"context"
	"fmt"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/ui"
	"github.com/spf13/cobra"
)

var createFlags sessionFlags

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "send"},
	Short:   "Create a room and wait for a peer",
	Long: `Create a room and print its code and join link. Share either with the
other side and start chatting once they join.

Examples:
  bridgelink create
  bridgelink create --send report.pdf --send photo.jpg
  bridgelink create --relay --turn turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), &createFlags, createRoom)
	},
}

func createRoom(ctx context.Context, cfg *config.Config, ctrl *session.Controller) (string, error) {
	roomID, err := ctrl.CreateRoom(ctx)
	if err != nil {
		return "", transfer.NewError("create room", err)
	}

	fmt.Println()
	fmt.Println(ui.RoomInfoView(roomID, cfg.GetRoomLink(roomID)))
	fmt.Println()
	return roomID, nil
}

func init() {
	rootCmd.AddCommand(createCmd)
	createFlags.register(createCmd)
}
