package api

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DeviceResponse identifies the device serving the API.
type DeviceResponse struct {
	DeviceID string `json:"device_id"`
	Role     string `json:"role"`
}

// MemoListResponse is returned by GET /memos.
type MemoListResponse struct {
	Count int          `json:"count"`
	Memos []*memo.Memo `json:"memos"`
}

// RecordingResponse describes the recording session.
type RecordingResponse struct {
	State  session.State `json:"state"`
	Format audio.Format  `json:"format"`
}

// UploadResponse is returned by POST /recording/audio.
type UploadResponse struct {
	Bytes int `json:"bytes"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var mergeErr *audio.MergeError
	var trimErr *audio.TrimError

	switch {
	case storage.IsNotFound(err), errors.Is(err, blob.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, node.ErrBusy),
		errors.Is(err, node.ErrNotRetryable),
		errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, memo.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, session.ErrDeviceUnavailable),
		errors.Is(err, transcribe.ErrUnavailable),
		errors.Is(err, node.ErrStopped):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, peer.ErrUnreachable), errors.Is(err, peer.ErrClosed):
		return fiber.StatusBadGateway
	case errors.Is(err, audio.ErrMalformed), errors.Is(err, audio.ErrFormatMismatch):
		return fiber.StatusBadRequest
	case errors.As(err, &mergeErr), errors.As(err, &trimErr):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, op string, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("api request failed", "op", op, "path", c.Path(), "error", err)
	} else {
		s.logger.Debug("api request rejected", "op", op, "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleDevice(c *fiber.Ctx) error {
	o := s.node.Origin()
	return c.JSON(DeviceResponse{DeviceID: o.DeviceID, Role: string(o.Role)})
}

// handleListMemos returns every memo newest first, optionally filtered by
// ?status=pending|completed|failed.
func (s *Server) handleListMemos(c *fiber.Ctx) error {
	memos, err := s.node.List(c.UserContext())
	if err != nil {
		return s.fail(c, "list", err)
	}

	if status := c.Query("status"); status != "" {
		want := memo.Status(status)
		if !want.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: fmt.Sprintf("unknown status %q", status)})
		}
		filtered := make([]*memo.Memo, 0, len(memos))
		for _, m := range memos {
			if m.Status == want {
				filtered = append(filtered, m)
			}
		}
		memos = filtered
	}

	if memos == nil {
		memos = []*memo.Memo{}
	}
	return c.JSON(MemoListResponse{Count: len(memos), Memos: memos})
}

func (s *Server) handleGetMemo(c *fiber.Ctx) error {
	m, err := s.node.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, "get", err)
	}
	return c.JSON(m)
}

func (s *Server) handleDeleteMemo(c *fiber.Ctx) error {
	if err := s.node.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, "delete", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleMemoAudio streams the memo's WAV file for playback.
func (s *Server) handleMemoAudio(c *fiber.Ctx) error {
	m, rc, err := s.node.OpenAudio(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, "audio", err)
	}

	c.Set(fiber.HeaderContentType, audio.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", m.ID+".wav"))
	return c.SendStream(rc)
}

func (s *Server) handleRetryMemo(c *fiber.Ctx) error {
	m, err := s.node.Retry(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.fail(c, "retry", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(m)
}

// handleExtendMemo starts a capture that is spliced onto the memo when the
// recording stops.
func (s *Server) handleExtendMemo(c *fiber.Ctx) error {
	if err := s.node.StartExtend(c.UserContext(), c.Params("id")); err != nil {
		return s.fail(c, "extend", err)
	}
	return s.handleRecordingState(c)
}

func (s *Server) handleRecordingState(c *fiber.Ctx) error {
	return c.JSON(RecordingResponse{
		State:  s.node.SessionState(),
		Format: s.node.Format(),
	})
}

func (s *Server) handleRecordingStart(c *fiber.Ctx) error {
	if err := s.node.StartRecording(c.UserContext()); err != nil {
		return s.fail(c, "start", err)
	}
	return s.handleRecordingState(c)
}

func (s *Server) handleRecordingPause(c *fiber.Ctx) error {
	if err := s.node.PauseRecording(c.UserContext()); err != nil {
		return s.fail(c, "pause", err)
	}
	return s.handleRecordingState(c)
}

func (s *Server) handleRecordingResume(c *fiber.Ctx) error {
	if err := s.node.ResumeRecording(c.UserContext()); err != nil {
		return s.fail(c, "resume", err)
	}
	return s.handleRecordingState(c)
}

// handleRecordingStop finalizes the capture and returns the memo as stored.
// Transcription continues in the background.
func (s *Server) handleRecordingStop(c *fiber.Ctx) error {
	m, err := s.node.StopRecording(c.UserContext())
	if err != nil {
		return s.fail(c, "stop", err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// handleRecordingAudio feeds captured audio to the active session. The body is
// either raw PCM in the session format or a WAV file of the same format.
func (s *Server) handleRecordingAudio(c *fiber.Ctx) error {
	body := c.Body()

	pcm := body
	if isWAV(c.Get(fiber.HeaderContentType), body) {
		seg, err := audio.DecodeBytes(body)
		if err != nil {
			return s.fail(c, "upload", err)
		}
		if want := s.node.Format(); seg.Format != want {
			return s.fail(c, "upload", fmt.Errorf("%w: got %+v, recording %+v", audio.ErrFormatMismatch, seg.Format, want))
		}
		pcm = seg.PCM
	}

	n, err := s.node.Write(pcm)
	if err != nil {
		return s.fail(c, "upload", err)
	}
	return c.JSON(UploadResponse{Bytes: n})
}

func (s *Server) handleSyncCatalog(c *fiber.Ctx) error {
	if err := s.node.RequestCatalog(c.UserContext()); err != nil {
		return s.fail(c, "catalog", err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func isWAV(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "audio/wav") || strings.HasPrefix(ct, "audio/x-wav") || strings.HasPrefix(ct, "audio/wave") {
		return true
	}
	return bytes.HasPrefix(body, []byte("RIFF"))
}
