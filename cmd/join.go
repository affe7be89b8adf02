package cmd

import (
	"context"
	"errors"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/signaling"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/ui"
	"github.com/spf13/cobra"
)

var joinFlags sessionFlags

var joinCmd = &cobra.Command{
	Use:     "join <room-code|url>",
	Aliases: []string{"j", "receive"},
	Short:   "Join a room created by a peer",
	Long: `Join a room by its code or join link and start chatting.

Examples:
  bridgelink join AB12CD
  bridgelink join https://bridgelink.qzz.io/?room=AB12CD
  bridgelink join ab12cd --dir ~/Downloads --zip`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := signaling.ParseJoinInput(args[0])
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), &joinFlags, joinRoom(roomID))
	},
}

func joinRoom(roomID string) startFunc {
	return func(ctx context.Context, cfg *config.Config, ctrl *session.Controller) (string, error) {
		if err := ctrl.JoinRoom(ctx, roomID); err != nil {
			if errors.Is(err, signaling.ErrRoomNotFound) {
				return "", transfer.WrapError("join room", err, "check the code with the other side")
			}
			return "", transfer.NewError("join room", err)
		}
		ui.PrintSuccessf("Joined room %s", roomID)
		return roomID, nil
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
