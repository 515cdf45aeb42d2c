package room

import (
	"context"
	"errors"
	"testing"

	"github.com/livekit/protocol/livekit"
)

// fakeRoomAPI records room service calls and returns canned responses.
type fakeRoomAPI struct {
	createReq *livekit.CreateRoomRequest
	createErr error

	deleteReq *livekit.DeleteRoomRequest
	deleteErr error

	listReq  *livekit.ListParticipantsRequest
	listResp *livekit.ListParticipantsResponse
	listErr  error
}

func (f *fakeRoomAPI) CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	f.createReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &livekit.Room{Name: req.Name, Sid: "RM_test"}, nil
}

func (f *fakeRoomAPI) DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	f.deleteReq = req
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &livekit.DeleteRoomResponse{}, nil
}

func (f *fakeRoomAPI) ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	f.listReq = req
	if f.listErr != nil {
		return nil, f.listErr
	}
	resp := f.listResp
	if resp == nil {
		resp = &livekit.ListParticipantsResponse{}
	}
	return resp, nil
}

func TestEnsureRoom(t *testing.T) {
	api := &fakeRoomAPI{}
	svc := newService(api)

	rm, err := svc.EnsureRoom(context.Background(), "demo-room")
	if err != nil {
		t.Fatalf("EnsureRoom failed: %v", err)
	}
	if rm.Name != "demo-room" {
		t.Errorf("Expected room 'demo-room', got '%s'", rm.Name)
	}
	if api.createReq.Name != "demo-room" {
		t.Errorf("Expected create request for 'demo-room', got '%s'", api.createReq.Name)
	}
	if api.createReq.EmptyTimeout == 0 {
		t.Error("Expected a nonzero empty-room timeout on create")
	}
}

func TestEnsureRoom_Error(t *testing.T) {
	api := &fakeRoomAPI{createErr: errors.New("twirp error unavailable")}
	if _, err := newService(api).EnsureRoom(context.Background(), "demo-room"); err == nil {
		t.Error("Expected error from failed create")
	}
}

func TestDeleteRoom(t *testing.T) {
	api := &fakeRoomAPI{}
	if err := newService(api).DeleteRoom(context.Background(), "demo-room"); err != nil {
		t.Fatalf("DeleteRoom failed: %v", err)
	}
	if api.deleteReq.Room != "demo-room" {
		t.Errorf("Expected delete request for 'demo-room', got '%s'", api.deleteReq.Room)
	}
}

func TestListParticipants(t *testing.T) {
	api := &fakeRoomAPI{
		listResp: &livekit.ListParticipantsResponse{
			Participants: []*livekit.ParticipantInfo{
				{Identity: "avatar"},
				{Identity: "viewer"},
			},
		},
	}

	participants, err := newService(api).ListParticipants(context.Background(), "demo-room")
	if err != nil {
		t.Fatalf("ListParticipants failed: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(participants))
	}
	if api.listReq.Room != "demo-room" {
		t.Errorf("Expected list request for 'demo-room', got '%s'", api.listReq.Room)
	}
}

func TestPermissionRepro_VerifiesAndCleansUp(t *testing.T) {
	cfg := roomTestConfig()
	api := &fakeRoomAPI{}
	denied := errors.New("twirp error permission_denied: no permission to create room")

	var joins int
	repro := NewPermissionRepro(cfg, func(url, token string) error {
		joins++
		if joins == 1 {
			return denied
		}
		return nil
	}, newService(api))

	report, err := repro.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Reproduced() {
		t.Fatal("Expected the asymmetry to reproduce")
	}

	if !report.RoomVerified {
		t.Error("Expected the created room to be verified through the room service")
	}
	if api.listReq == nil || api.listReq.Room != report.RoomName {
		t.Errorf("Expected participant listing for %s, got %+v", report.RoomName, api.listReq)
	}
	if api.deleteReq == nil || api.deleteReq.Room != report.RoomName {
		t.Errorf("Expected cleanup deletion of %s, got %+v", report.RoomName, api.deleteReq)
	}
	if report.CleanupErr != nil {
		t.Errorf("Expected clean deletion, got %v", report.CleanupErr)
	}
}

func TestPermissionRepro_VerificationFailureIsNotFatal(t *testing.T) {
	api := &fakeRoomAPI{listErr: errors.New("twirp error not_found")}

	repro := NewPermissionRepro(roomTestConfig(), func(url, token string) error {
		return nil
	}, newService(api))

	report, err := repro.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.RoomVerified {
		t.Error("Expected verification to fail when listing errors")
	}
	if api.deleteReq != nil {
		t.Error("Expected no deletion attempt without verification")
	}
}
