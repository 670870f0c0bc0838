package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"qrattend/internal/files"
	"qrattend/internal/ledger"
	"qrattend/internal/models"
	"qrattend/internal/registry"
	"qrattend/internal/utils"
)

type brokenKV struct{ files.KV }

func (brokenKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }

type CoordinatorSuite struct {
	suite.Suite
	ctx      context.Context
	now      time.Time
	registry *registry.Store
	ledger   *ledger.Ledger
	coord    *Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, time.October, 15, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.registry = registry.New(files.NewMemoryKV(), registry.WithClock(clock))
	s.ledger = ledger.New(files.NewMemoryKV(), ledger.WithClock(clock), ledger.WithLocation(time.UTC))
	s.coord = NewCoordinator(s.registry, s.ledger, "WMAD 1-1")
}

func (s *CoordinatorSuite) bucket(section string) []models.AttendanceEntry {
	return s.ledger.EntriesFor(2026, time.October, time.Thursday, section)
}

func (s *CoordinatorSuite) TestScanTwiceSameDay() {
	first := s.coord.Scan(s.ctx, "S100:Juan Dela Cruz:WMAD 1-1")
	s.Equal(StateRecorded, first.State)
	s.Require().NotNil(first.Identity)
	s.Equal("Juan Dela Cruz", first.Identity.Name)
	s.Equal("Attendance marked for Juan Dela Cruz!", first.Message)
	s.NotEmpty(first.ScanID)
	s.NoError(first.Err())

	second := s.coord.Scan(s.ctx, "S100:Juan Dela Cruz:WMAD 1-1")
	s.Equal(StateDuplicate, second.State)
	s.Equal("Juan Dela Cruz already marked attendance today", second.Message)
	s.NotEqual(first.ScanID, second.ScanID)
	s.True(utils.IsKind(second.Err(), utils.KindDuplicateScan))

	s.Len(s.bucket("WMAD 1-1"), 1)
}

func (s *CoordinatorSuite) TestRejectsUnparseable() {
	for _, raw := range []string{"", "hello world and more words", ":Ana:WMAD 1-1"} {
		out := s.coord.Scan(s.ctx, raw)
		s.Equal(StateRejected, out.State, raw)
		s.Equal(MsgInvalidFormat, out.Message)
		s.Nil(out.Identity)
		s.True(utils.IsKind(out.Err(), utils.KindParseRejection))
	}
	s.Empty(s.ledger.Buckets())
}

func (s *CoordinatorSuite) TestSectionFollowsStudent() {
	_, _, err := s.registry.Register(s.ctx, models.StudentIdentity{ID: "S200", Name: "Ana Reyes", Section: "WMAD 1-2"})
	s.Require().NoError(err)

	out := s.coord.Scan(s.ctx, "S200")
	s.Equal(StateRecorded, out.State)
	s.True(out.SectionSwitched)
	s.Equal("WMAD 1-1", out.PreviousSection)
	s.Equal("WMAD 1-2", out.ActiveSection)
	s.Equal("WMAD 1-2", s.coord.ActiveSection())
	s.Len(s.bucket("WMAD 1-2"), 1)
	s.Empty(s.bucket("WMAD 1-1"))

	// a second student of the new section does not switch again
	out = s.coord.Scan(s.ctx, "S201:Ben:WMAD 1-2")
	s.False(out.SectionSwitched)
}

func (s *CoordinatorSuite) TestRegisteredDataOverridesPayload() {
	_, _, err := s.registry.Register(s.ctx, models.StudentIdentity{ID: "S100", Name: "Juan Dela Cruz", Section: "WMAD 1-1"})
	s.Require().NoError(err)

	out := s.coord.Scan(s.ctx, "S100|J. Cruz|Other")
	s.Equal(StateRecorded, out.State)
	s.Equal(models.StudentIdentity{ID: "S100", Name: "Juan Dela Cruz", Section: "WMAD 1-1"}, *out.Identity)
	s.False(out.SectionSwitched)

	entries := s.bucket("WMAD 1-1")
	s.Require().Len(entries, 1)
	s.Equal("Juan Dela Cruz", entries[0].StudentName)
}

func (s *CoordinatorSuite) TestExactPayloadMatch() {
	_, _, err := s.registry.Register(s.ctx, models.StudentIdentity{ID: "S9", Name: "Carla", Section: "WMAD 1-1"})
	s.Require().NoError(err)

	out := s.coord.Scan(s.ctx, "S9:Carla:WMAD 1-1")
	s.Equal(StateRecorded, out.State)
	s.False(out.Identity.NeedsManualInfo)
}

func (s *CoordinatorSuite) TestBareIDUsesActiveSection() {
	s.Require().NoError(s.coord.SetActiveSection("WMAD 1-2"))

	out := s.coord.Scan(s.ctx, "12345")
	s.Equal(StateRecorded, out.State)
	s.Equal(models.UnknownName, out.Identity.Name)
	s.True(out.Identity.NeedsManualInfo)
	s.Len(s.bucket("WMAD 1-2"), 1)

	s.True(utils.IsKind(s.coord.SetActiveSection("  "), utils.KindValidation))
	s.Equal("WMAD 1-2", s.coord.ActiveSection())
}

func (s *CoordinatorSuite) TestPersistenceFailureIsWarning() {
	l := ledger.New(brokenKV{files.NewMemoryKV()}, ledger.WithLocation(time.UTC))
	coord := NewCoordinator(s.registry, l, "WMAD 1-1")

	out := coord.Scan(s.ctx, "S1:Ana")
	s.Equal(StateRecorded, out.State)
	s.Contains(out.Warning, "disk full")
}
