package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/payload"
	apperrors "github.com/pscheid92/fanout/internal/platform/errors"
)

const contentTypeProtobuf = "application/protobuf"

type itemRequest struct {
	Number *int32  `json:"number"`
	Name   *string `json:"name"`
}

type producerResponse struct {
	Status   string       `json:"status"`
	Request  payload.Item `json:"request"`
	Mirrored bool         `json:"mirrored"`
}

type broadcastResponse struct {
	Status   string `json:"status"`
	Kind     string `json:"kind"`
	Bytes    int    `json:"bytes"`
	Mirrored bool   `json:"mirrored"`
}

func (s *Server) handleJSONToJSON(c echo.Context) error {
	item, err := bindItem(c)
	if err != nil {
		return err
	}

	body, err := json.Marshal(item)
	if err != nil {
		return apperrors.InternalError("failed to encode item", err)
	}
	s.producer.Broadcast(domain.TextMessage(string(body)))

	return s.respondItem(c, "JSON broadcast to websocket clients", item)
}

func (s *Server) handleJSONToProtobuf(c echo.Context) error {
	item, err := bindItem(c)
	if err != nil {
		return err
	}

	s.producer.Broadcast(domain.BinaryMessage(item.MarshalProto()))

	return s.respondItem(c, "JSON encoded to protobuf and broadcast as binary", item)
}

// handleProtobufToProtobuf validates the body as an Item and broadcasts the
// original bytes unchanged.
func (s *Server) handleProtobufToProtobuf(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}

	if _, err := payload.UnmarshalProto(body); err != nil {
		return apperrors.ValidationError("invalid protobuf body")
	}

	s.producer.Broadcast(domain.BinaryMessage(body))

	if err := c.Blob(http.StatusOK, contentTypeProtobuf, body); err != nil {
		return fmt.Errorf("failed to write protobuf response: %w", err)
	}
	return nil
}

// handleBroadcast is the raw producer route: text/* bodies become text
// frames, anything else a binary frame. The mirror publish is synchronous.
func (s *Server) handleBroadcast(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return apperrors.ValidationError("empty body")
	}

	var msg domain.Message
	if isTextContent(c.Request().Header.Get(echo.HeaderContentType)) {
		if !utf8.Valid(body) {
			return apperrors.ValidationError("text body is not valid UTF-8")
		}
		msg = domain.TextMessage(string(body))
	} else {
		msg = domain.BinaryMessage(body)
	}

	if err := s.producer.Dispatch(c.Request().Context(), msg); err != nil {
		return apperrors.UnavailableError("delivered locally but mirror publish failed", err).
			WithContext("delivered_locally", true)
	}

	slog.DebugContext(c.Request().Context(), "Producer broadcast", "kind", msg.Kind().String(), "bytes", msg.Len())

	resp := broadcastResponse{
		Status:   "broadcast",
		Kind:     msg.Kind().String(),
		Bytes:    msg.Len(),
		Mirrored: s.producer.Mirrored(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}

func (s *Server) respondItem(c echo.Context, status string, item payload.Item) error {
	resp := producerResponse{
		Status:   status,
		Request:  item,
		Mirrored: s.producer.Mirrored(),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write producer response: %w", err)
	}
	return nil
}

// bindItem decodes a JSON item; both fields are required.
func bindItem(c echo.Context) (payload.Item, error) {
	if ct := c.Request().Header.Get(echo.HeaderContentType); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != echo.MIMEApplicationJSON {
			return payload.Item{}, apperrors.UnsupportedError("expected application/json")
		}
	}

	var req itemRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		if tooLarge(err) {
			return payload.Item{}, echo.ErrStatusRequestEntityTooLarge
		}
		return payload.Item{}, apperrors.ValidationError("invalid JSON body")
	}
	if req.Number == nil || req.Name == nil {
		return payload.Item{}, apperrors.ValidationError("fields number and name are required")
	}

	return payload.Item{Number: *req.Number, Name: *req.Name}, nil
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		if tooLarge(err) {
			return nil, echo.ErrStatusRequestEntityTooLarge
		}
		return nil, apperrors.ValidationError("failed to read body")
	}
	return body, nil
}

// tooLarge reports whether err came from echo's body limit reader.
func tooLarge(err error) bool {
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}

func isTextContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/")
}
