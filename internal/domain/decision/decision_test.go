package decision

import "testing"

func TestFromRecord_Allow(t *testing.T) {
	t.Parallel()

	resp := FromRecord(&Record{BlockAction: false})
	if resp.BlockAction {
		t.Errorf("FromRecord() = %+v, want BlockAction false", resp)
	}
}

func TestFromRecord_Block(t *testing.T) {
	t.Parallel()

	code := uint32(111)
	reason := "blocked"
	blockedBy := "exfil"
	rec := &Record{
		BlockAction: true,
		ReasonCode:  &code,
		Reason:      &reason,
		BlockedBy:   &blockedBy,
	}

	resp := FromRecord(rec)
	if !resp.BlockAction || resp.ReasonCode == nil || *resp.ReasonCode != code {
		t.Errorf("FromRecord() = %+v, want the original block attribution", resp)
	}
}

func TestFromRecord_AuditSuppressedSurfacesAsAllow(t *testing.T) {
	t.Parallel()

	code := uint32(111)
	rec := &Record{BlockAction: true, ReasonCode: &code, AuditSuppressed: true}

	resp := FromRecord(rec)
	if resp.BlockAction {
		t.Errorf("FromRecord() = %+v, want a suppressed block to surface outward as Allow", resp)
	}
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	resp := NewErrorResponse(ErrBodyTooLarge, "body too large")
	if resp.HTTPStatus != 413 {
		t.Errorf("HTTPStatus = %d, want 413", resp.HTTPStatus)
	}
	if resp.ErrorCode != ErrBodyTooLarge {
		t.Errorf("ErrorCode = %d, want %d", resp.ErrorCode, ErrBodyTooLarge)
	}

	unauth := NewErrorResponse(ErrUnauthorized, "unauthorized")
	if unauth.HTTPStatus != 401 {
		t.Errorf("HTTPStatus = %d, want 401", unauth.HTTPStatus)
	}
}
