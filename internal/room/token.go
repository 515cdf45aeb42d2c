// Package room wraps the room platform's server API: access token minting,
// room administration, and the room-creation permission reproduction.
package room

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/voxkit/avatar-bridge/internal/config"
)

// TokenOptions control the grants minted into an access token.
type TokenOptions struct {
	Identity     string
	Room         string
	RoomJoin     bool
	RoomCreate   bool
	CanPublish   bool
	CanSubscribe bool
	TTL          time.Duration
}

// DefaultTokenTTL bounds tokens minted by demo commands.
const DefaultTokenTTL = 10 * time.Minute

// MintToken creates a signed access token for the room platform.
func MintToken(cfg *config.Config, opts TokenOptions) (string, error) {
	if opts.Identity == "" {
		return "", fmt.Errorf("token identity must not be empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTokenTTL
	}

	canPublish := opts.CanPublish
	canSubscribe := opts.CanSubscribe
	grant := &auth.VideoGrant{
		RoomJoin:     opts.RoomJoin,
		RoomCreate:   opts.RoomCreate,
		Room:         opts.Room,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}

	at := auth.NewAccessToken(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
	at.SetVideoGrant(grant).
		SetIdentity(opts.Identity).
		SetValidFor(opts.TTL)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// VerifyToken parses and verifies a token against the configured secret,
// returning its claims. Used by tests and the permission repro report.
func VerifyToken(cfg *config.Config, token string) (*auth.ClaimGrants, error) {
	verifier, err := auth.ParseAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if verifier.APIKey() != cfg.LiveKitAPIKey {
		return nil, fmt.Errorf("token issued for key %s, expected %s", verifier.APIKey(), cfg.LiveKitAPIKey)
	}

	claims, err := verifier.Verify(cfg.LiveKitAPISecret)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}
