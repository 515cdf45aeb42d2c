// room-permission-repro demonstrates the room-creation permission
// asymmetry: a token with roomJoin but no roomCreate is refused when the
// target room does not exist yet, while the same join with roomCreate
// succeeds and creates the room implicitly.
package main

import (
	"fmt"
	"os"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
	"github.com/voxkit/avatar-bridge/internal/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("livekit_url", cfg.LiveKitURL).
		Msg("Running room-creation permission repro")

	repro := room.NewPermissionRepro(cfg, nil, room.NewService(cfg))
	report, err := repro.Run()
	if err != nil {
		logger.Fatal().Err(err).Msg("Repro run failed")
	}

	logger.Info().
		Str("room", report.RoomName).
		AnErr("denied_join_err", report.DeniedJoinErr).
		AnErr("allowed_join_err", report.AllowedJoinErr).
		Bool("room_verified", report.RoomVerified).
		AnErr("cleanup_err", report.CleanupErr).
		Bool("reproduced", report.Reproduced()).
		Msg("Repro finished")

	if !report.Reproduced() {
		logger.Warn().Msg("Permission asymmetry did not reproduce against this server")
		os.Exit(1)
	}
}
