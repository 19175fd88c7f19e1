package ingest

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lifelink/internal/donor/domain"
	"github.com/example/lifelink/internal/donor/match"
)

// Server ingests donor location updates and writes them through to storage
// and the geo index. Unknown donors and malformed updates are skipped, not
// fatal to the stream.
type Server struct {
	repo   domain.Repository
	geo    match.GeoIndex
	logger *zap.Logger
}

// NewServer constructs an ingest server. The geo index may be nil.
func NewServer(repo domain.Repository, geo match.GeoIndex, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{repo: repo, geo: geo, logger: logger}
}

// StreamLocation consumes donor location updates until the client closes.
func (s *Server) StreamLocation(stream Location_StreamLocationServer) error {
	ctx := stream.Context()
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}

		donorID, err := uuid.Parse(msg.DonorId)
		if err != nil {
			continue
		}
		point := domain.GeoPoint{Lat: msg.Lat, Lng: msg.Lng}
		if err := point.Validate(); err != nil || point.IsZero() {
			continue
		}

		donor, err := s.repo.GetDonorByID(ctx, donorID)
		if err != nil {
			continue
		}
		donor.Location = &point
		if _, err := s.repo.UpdateDonor(ctx, donor); err != nil {
			s.logger.Warn("location write failed",
				zap.String("donor_id", donorID.String()), zap.Error(err))
			continue
		}
		if s.geo != nil {
			if err := s.geo.Upsert(ctx, donorID, point); err != nil {
				s.logger.Warn("geo index upsert failed",
					zap.String("donor_id", donorID.String()), zap.Error(err))
			}
		}
	}
}
