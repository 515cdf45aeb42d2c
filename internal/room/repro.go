package room

import (
	"context"
	"fmt"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// JoinFunc attempts to join a room with the given token. Production wiring
// uses ConnectWithToken; tests substitute a fake.
type JoinFunc func(url, token string) error

// ReproReport captures the outcome of one run of the room-creation
// permission reproduction.
type ReproReport struct {
	RoomName string

	// Join with roomJoin but WITHOUT roomCreate against a room that does
	// not exist yet. The platform is expected to reject the implicit room
	// creation; a nil error here means the bug did not reproduce.
	DeniedJoinErr error

	// Join with roomJoin AND roomCreate. Expected to succeed and
	// auto-create the room.
	AllowedJoinErr error

	// RoomVerified is set when the room service confirmed the room exists
	// after the privileged join. Stays false when no service is wired.
	RoomVerified bool

	// CleanupErr records the room deletion outcome after verification.
	CleanupErr error
}

// Reproduced reports whether the permission asymmetry showed up: the
// restricted token is refused while the create-capable token succeeds.
func (r *ReproReport) Reproduced() bool {
	return r.DeniedJoinErr != nil && r.AllowedJoinErr == nil
}

// PermissionRepro drives the room-creation permission reproduction.
type PermissionRepro struct {
	cfg    *config.Config
	join   JoinFunc
	svc    *Service
	logger zerolog.Logger
}

// NewPermissionRepro creates a repro runner using the given join function.
// With a non-nil service the run verifies through the server API that the
// privileged join actually created the room, then deletes it.
func NewPermissionRepro(cfg *config.Config, join JoinFunc, svc *Service) *PermissionRepro {
	if join == nil {
		join = ConnectWithToken
	}
	return &PermissionRepro{
		cfg:    cfg,
		join:   join,
		svc:    svc,
		logger: observability.GetLogger().With().Str("component", "permission_repro").Logger(),
	}
}

// Run executes the reproduction against a room name that does not exist yet
// and returns the structured outcome. With a room service wired, the room
// created by the second join is verified and deleted; otherwise it is left
// for the platform's empty-room timeout to reclaim.
func (p *PermissionRepro) Run() (*ReproReport, error) {
	roomName := fmt.Sprintf("%s-repro-%d", p.cfg.RoomName, time.Now().UnixNano())
	report := &ReproReport{RoomName: roomName}

	restricted, err := MintToken(p.cfg, TokenOptions{
		Identity:     "repro-restricted",
		Room:         roomName,
		RoomJoin:     true,
		RoomCreate:   false,
		CanPublish:   true,
		CanSubscribe: true,
	})
	if err != nil {
		return nil, fmt.Errorf("mint restricted token: %w", err)
	}

	p.logger.Info().Str("room", roomName).Msg("Joining nonexistent room without roomCreate grant")
	report.DeniedJoinErr = p.join(p.cfg.LiveKitURL, restricted)
	if report.DeniedJoinErr == nil {
		p.logger.Warn().Str("room", roomName).Msg("Restricted join unexpectedly succeeded, bug not reproduced")
	} else {
		p.logger.Info().Err(report.DeniedJoinErr).Msg("Restricted join rejected as expected")
	}

	privileged, err := MintToken(p.cfg, TokenOptions{
		Identity:     "repro-privileged",
		Room:         roomName,
		RoomJoin:     true,
		RoomCreate:   true,
		CanPublish:   true,
		CanSubscribe: true,
	})
	if err != nil {
		return nil, fmt.Errorf("mint privileged token: %w", err)
	}

	p.logger.Info().Str("room", roomName).Msg("Joining again with roomCreate grant")
	report.AllowedJoinErr = p.join(p.cfg.LiveKitURL, privileged)
	if report.AllowedJoinErr != nil {
		p.logger.Error().Err(report.AllowedJoinErr).Msg("Privileged join failed, environment problem rather than the permission bug")
		return report, nil
	}

	if p.svc != nil {
		p.verifyAndCleanup(report)
	}

	return report, nil
}

// verifyAndCleanup confirms through the server API that the privileged join
// created the room, then deletes it instead of leaving it to the empty-room
// timeout.
func (p *PermissionRepro) verifyAndCleanup(report *ReproReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	participants, err := p.svc.ListParticipants(ctx, report.RoomName)
	if err != nil {
		p.logger.Warn().Err(err).Str("room", report.RoomName).Msg("Could not confirm the room was created")
		return
	}
	report.RoomVerified = true
	p.logger.Info().
		Str("room", report.RoomName).
		Int("participants", len(participants)).
		Msg("Privileged join created the room")

	report.CleanupErr = p.svc.DeleteRoom(ctx, report.RoomName)
	if report.CleanupErr != nil {
		p.logger.Warn().Err(report.CleanupErr).Str("room", report.RoomName).Msg("Failed to delete repro room")
	}
}

// ConnectWithToken joins a room with a pre-minted token and disconnects
// immediately. Only connection-handshake errors matter to the repro.
func ConnectWithToken(url, token string) error {
	rm, err := lksdk.ConnectToRoomWithToken(url, token, &lksdk.RoomCallback{})
	if err != nil {
		return err
	}
	rm.Disconnect()
	return nil
}
