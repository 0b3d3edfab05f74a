package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/vspfilter/internal/api/models"
	"github.com/smazurov/vspfilter/internal/vsp"
	"github.com/smazurov/vspfilter/pkg/linuxav/v4l2"
)

// sessionError maps a conversion error onto an HTTP status. The detail is
// the error code, the first error entry the full message.
func sessionError(err error) error {
	code := vsp.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case vsp.ErrCodeUnsupportedFormat, vsp.ErrCodeUnsupportedGeometry:
		status = http.StatusUnprocessableEntity
	case vsp.ErrCodeDeviceNotFound, vsp.ErrCodeIPNameMismatch, vsp.ErrCodeEntityNotFound:
		status = http.StatusServiceUnavailable
	case vsp.ErrCodeTopologyConflict:
		status = http.StatusConflict
	}
	if code == "" {
		return huma.NewError(status, "internal error", err)
	}
	return huma.NewError(status, string(code), err)
}

func (s *Server) registerVSPRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-formats",
		Method:      http.MethodGet,
		Path:        "/api/vsp/formats",
		Summary:     "Formats",
		Description: "List the pixel formats the converter maps to hardware",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.FormatsResponse, error) {
		formats := vsp.Formats()
		out := make([]models.FormatInfo, 0, len(formats))
		for _, f := range formats {
			fourcc, _ := f.FourCC()
			out = append(out, models.FormatInfo{
				Name:        string(f),
				FourCC:      v4l2.FormatFourCC(fourcc),
				Planes:      f.Planes(),
				PixelStride: f.PixelStride(),
			})
		}
		return &models.FormatsResponse{
			Body: models.FormatsData{Formats: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-devices",
		Method:      http.MethodGet,
		Path:        "/api/vsp/devices",
		Summary:     "Devices",
		Description: "Locate and open the input and output stages without linking the graph",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(_ context.Context, _ *struct{}) (*models.DevicesResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.session.Setup(); err != nil {
			return nil, sessionError(err)
		}
		st := s.session.Status()
		return &models.DevicesResponse{
			Body: models.DevicesData{
				IPName:      st.IPName,
				MediaDevice: st.MediaDevice,
				Stages:      st.Stages,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-graph",
		Method:      http.MethodGet,
		Path:        "/api/vsp/graph",
		Summary:     "Media graph",
		Description: "List media entities and their outgoing links",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(_ context.Context, _ *struct{}) (*models.GraphResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		entities, err := s.session.Graph()
		if err != nil {
			return nil, sessionError(err)
		}
		return &models.GraphResponse{
			Body: models.GraphData{
				MediaDevice: s.session.Status().MediaDevice,
				Entities:    entities,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "validate-conversion",
		Method:      http.MethodPost,
		Path:        "/api/vsp/validate",
		Summary:     "Validate conversion",
		Description: "Ask both stages whether they accept a conversion without committing anything",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 500, 503},
	}, func(_ context.Context, input *models.ValidateRequest) (*models.ValidateResponse, error) {
		req, err := conversionRequest(input.Body)
		if err != nil {
			return nil, sessionError(err)
		}
		topology, err := vsp.PlanTopology(req)
		if err != nil {
			return nil, sessionError(err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if err := s.session.Validate(req); err != nil {
			return nil, sessionError(err)
		}
		return &models.ValidateResponse{
			Body: models.ValidateData{Valid: true, Topology: topology.String()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/vsp/session",
		Summary:     "Session status",
		Description: "Link, streaming and error state of the converter session",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return &models.SessionResponse{Body: s.session.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-session",
		Method:      http.MethodDelete,
		Path:        "/api/vsp/session",
		Summary:     "Tear down session",
		Description: "Stop streaming and close every device. The next request sets up a new session.",
		Tags:        []string{"vsp"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionDeleteResponse, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		st := s.session.Status()
		s.session.Teardown()
		s.logger.Info("Session torn down via API", "frames", st.FramesConverted, "failed", st.FramesFailed)
		return &models.SessionDeleteResponse{
			Body: models.SessionDeleteData{
				Message:         "Session closed",
				FramesConverted: st.FramesConverted,
				FramesFailed:    st.FramesFailed,
			},
		}, nil
	})
}

func conversionRequest(body models.ValidateRequestData) (vsp.Request, error) {
	in, err := vsp.ParseFormat(body.Input.Format)
	if err != nil {
		return vsp.Request{}, err
	}
	out, err := vsp.ParseFormat(body.Output.Format)
	if err != nil {
		return vsp.Request{}, err
	}
	return vsp.Request{
		In:        vsp.Frame{Format: in, Width: body.Input.Width, Height: body.Input.Height},
		Out:       vsp.Frame{Format: out, Width: body.Output.Width, Height: body.Output.Height},
		OutStride: body.OutStride,
	}, nil
}
