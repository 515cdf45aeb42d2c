package room

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog"

	"github.com/voxkit/avatar-bridge/internal/config"
	"github.com/voxkit/avatar-bridge/internal/observability"
)

// roomAPI is the slice of the platform's room service the wrapper uses.
// Satisfied by *lksdk.RoomServiceClient; tests substitute a fake.
type roomAPI interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
}

// Service wraps the room platform's server-side room administration API.
type Service struct {
	client roomAPI
	logger zerolog.Logger
}

// NewService creates a room service client from configuration.
func NewService(cfg *config.Config) *Service {
	return newService(lksdk.NewRoomServiceClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret))
}

func newService(client roomAPI) *Service {
	return &Service{
		client: client,
		logger: observability.GetLogger().With().Str("component", "room_service").Logger(),
	}
}

// EnsureRoom creates the named room, or returns the existing one. Room
// creation is idempotent on the platform side.
func (s *Service) EnsureRoom(ctx context.Context, name string) (*livekit.Room, error) {
	rm, err := s.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:         name,
		EmptyTimeout: 300, // seconds before an empty room is reclaimed
	})
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", name, err)
	}

	s.logger.Info().Str("room", rm.Name).Str("sid", rm.Sid).Msg("Room ready")
	return rm, nil
}

// DeleteRoom removes a room and disconnects its participants.
func (s *Service) DeleteRoom(ctx context.Context, name string) error {
	if _, err := s.client.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: name}); err != nil {
		return fmt.Errorf("delete room %s: %w", name, err)
	}

	s.logger.Info().Str("room", name).Msg("Room deleted")
	return nil
}

// ListParticipants returns the participants currently in a room.
func (s *Service) ListParticipants(ctx context.Context, name string) ([]*livekit.ParticipantInfo, error) {
	resp, err := s.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: name})
	if err != nil {
		return nil, fmt.Errorf("list participants in %s: %w", name, err)
	}
	return resp.Participants, nil
}
