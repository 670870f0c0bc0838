package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"qrattend/internal/app"
	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/models"
	"qrattend/internal/qrgen"
	"qrattend/internal/scanner"
	"qrattend/internal/utils"
)

type APISuite struct {
	suite.Suite
	app    *app.App
	server *httptest.Server
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	cfg := &config.Config{DataDir: s.T().TempDir(), Location: time.UTC}
	cfg.Storage.Backend = config.BackendMemory
	cfg.Section.Default = "WMAD 1-1"
	cfg.Section.List = []string{"WMAD 1-1", "WMAD 1-2"}
	cfg.Image.MaxDimension = 1024

	reg := prometheus.NewRegistry()
	a, err := app.New(context.Background(), cfg, utils.DiscardLogger(), reg)
	s.Require().NoError(err)
	s.app = a
	s.server = httptest.NewServer(NewRouter(a, utils.DiscardLogger(), reg))
}

func (s *APISuite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.app.Close())
}

func (s *APISuite) do(method, path string, body any) *http.Response {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, rdr)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *APISuite) upload(path, field string, files map[string][]byte) *http.Response {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		s.Require().NoError(err)
		_, err = fw.Write(data)
		s.Require().NoError(err)
	}
	s.Require().NoError(mw.Close())
	resp, err := http.Post(s.server.URL+path, mw.FormDataContentType(), &buf)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](s *APISuite, resp *http.Response) T {
	var v T
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func qrPNG(s *APISuite, payload string) []byte {
	data, err := qrcode.Encode(payload, qrcode.Medium, 256)
	s.Require().NoError(err)
	return data
}

func (s *APISuite) TestHealth() {
	resp := s.do(http.MethodGet, "/health", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *APISuite) TestScanTextFlow() {
	resp := s.do(http.MethodPost, "/scan", map[string]string{"text": "S100:Juan Dela Cruz:WMAD 1-1"})
	s.Equal(http.StatusOK, resp.StatusCode)
	out := decode[attendance.Outcome](s, resp)
	s.Equal(attendance.StateRecorded, out.State)

	resp = s.do(http.MethodPost, "/scan", map[string]string{"text": "S100:Juan Dela Cruz:WMAD 1-1"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal(attendance.StateDuplicate, decode[attendance.Outcome](s, resp).State)

	resp = s.do(http.MethodPost, "/scan", map[string]string{"text": ""})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	rejected := decode[attendance.Outcome](s, resp)
	s.Equal(attendance.StateRejected, rejected.State)
	s.Equal(attendance.MsgInvalidFormat, rejected.Message)

	resp = s.do(http.MethodGet, "/attendance", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	list := decode[attendanceResponse](s, resp)
	s.Require().Len(list.Entries, 1)
	s.Equal("Juan Dela Cruz", list.Entries[0].StudentName)
	s.True(strings.HasSuffix(list.Key, "_WMAD 1-1"))

	resp = s.do(http.MethodGet, "/attendance?q=nobody", nil)
	s.Empty(decode[attendanceResponse](s, resp).Entries)

	resp = s.do(http.MethodDelete, "/attendance/"+url.PathEscape(list.Key)+"/5", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(utils.KindValidation, decode[errorBody](s, resp).Kind)

	resp = s.do(http.MethodDelete, "/attendance/"+url.PathEscape(list.Key)+"/0", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("S100", decode[models.AttendanceEntry](s, resp).StudentID)
}

func (s *APISuite) TestAttendanceQueryValidation() {
	for _, q := range []string{"year=abc", "month=Smarch", "month=13", "day=Funday"} {
		resp := s.do(http.MethodGet, "/attendance?"+q, nil)
		s.Equal(http.StatusBadRequest, resp.StatusCode, q)
	}
	resp := s.do(http.MethodGet, "/attendance?year=2026&month=10&day=thursday&section=WMAD%201-2", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("2026_October_Thursday_WMAD 1-2", decode[attendanceResponse](s, resp).Key)
}

func (s *APISuite) TestRegistryCRUD() {
	resp := s.do(http.MethodPost, "/registry", map[string]string{"id": "A1", "name": "Ana"})
	s.Equal(http.StatusCreated, resp.StatusCode)
	entry := decode[models.RegisteredEntry](s, resp)
	s.Equal("A1:Ana:WMAD 1-1", entry.RawPayload)

	resp = s.do(http.MethodPost, "/registry", map[string]string{"id": "A1", "name": "Ana Reyes", "section": "WMAD 1-1"})
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.do(http.MethodPost, "/registry", map[string]string{"id": "A9"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(utils.KindValidation, decode[errorBody](s, resp).Kind)

	resp = s.do(http.MethodPut, "/registry/A1", map[string]string{"id": "A2", "name": "Ana Reyes", "section": "WMAD 1-1"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("A2:Ana Reyes:WMAD 1-1", decode[models.RegisteredEntry](s, resp).RawPayload)

	resp = s.do(http.MethodGet, "/registry?q=reyes", nil)
	list := decode[[]models.RegisteredEntry](s, resp)
	s.Require().Len(list, 1)
	s.Equal("A2", list[0].ID)

	resp = s.do(http.MethodPut, "/registry/ZZ", map[string]string{"id": "ZZ", "name": "Zed"})
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.do(http.MethodDelete, "/registry/A2", nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)
	resp = s.do(http.MethodDelete, "/registry/A2", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal(utils.KindNotFound, decode[errorBody](s, resp).Kind)
}

func (s *APISuite) TestSection() {
	resp := s.do(http.MethodGet, "/section", nil)
	body := decode[sectionBody](s, resp)
	s.Equal("WMAD 1-1", body.Section)
	s.Equal([]string{"WMAD 1-1", "WMAD 1-2"}, body.Sections)

	resp = s.do(http.MethodPut, "/section", map[string]string{"section": "WMAD 1-2"})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("WMAD 1-2", s.app.Coordinator.ActiveSection())

	resp = s.do(http.MethodPut, "/section", map[string]string{"section": ""})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestScanImage() {
	resp := s.upload("/scan/image", "file", map[string][]byte{"juan.png": qrPNG(s, "S100:Juan Dela Cruz:WMAD 1-2")})
	s.Equal(http.StatusOK, resp.StatusCode)
	out := decode[attendance.Outcome](s, resp)
	s.Equal(attendance.StateRecorded, out.State)
	s.True(out.SectionSwitched)

	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)
	var blank bytes.Buffer
	s.Require().NoError(png.Encode(&blank, img))

	resp = s.upload("/scan/image", "file", map[string][]byte{"blank.png": blank.Bytes()})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[errorBody](s, resp)
	s.Equal(utils.KindImageDecode, body.Kind)
	s.Require().NotNil(body.Diagnostics)
	s.Len(body.Diagnostics.Attempts, 4)

	resp = s.upload("/scan/image", "file", map[string][]byte{"junk.png": []byte("junk")})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(utils.KindImageLoad, decode[errorBody](s, resp).Kind)
}

func (s *APISuite) TestUploadRegistry() {
	resp := s.upload("/registry/upload", "files", map[string][]byte{
		"ana.png":  qrPNG(s, "S1:Ana Reyes"),
		"junk.png": []byte("junk"),
	})
	s.Equal(http.StatusOK, resp.StatusCode)
	sum := decode[attendance.BatchSummary](s, resp)
	s.Equal(1, sum.Succeeded)
	s.Equal(1, sum.Failed)

	e, ok := s.app.Registry.FindByID("S1")
	s.Require().True(ok)
	s.Equal("WMAD 1-1", e.Section)
}

func (s *APISuite) TestUploadBodyLimit() {
	prev := maxBody
	maxBody = 1 << 10
	s.T().Cleanup(func() { maxBody = prev })

	resp := s.upload("/registry/upload", "files", map[string][]byte{"big.png": bytes.Repeat([]byte{0}, 4<<10)})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(utils.KindImageLoad, decode[errorBody](s, resp).Kind)
	s.Zero(s.app.Registry.Len())
}

func (s *APISuite) TestGenerateQRClampsSize() {
	resp := s.do(http.MethodGet, "/qr?id=S100&name=Juan&size=100000", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	cfg, err := png.DecodeConfig(resp.Body)
	s.Require().NoError(err)
	s.Equal(qrgen.MaxSize, cfg.Width)
}

func (s *APISuite) TestGenerateQR() {
	resp := s.do(http.MethodGet, "/qr?id=S100&name=Juan+Dela+Cruz", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("image/png", resp.Header.Get("Content-Type"))
	s.Contains(resp.Header.Get("Content-Disposition"), "QR_S100_Juan_Dela_Cruz.png")

	res := s.app.Extractor.ScanImage(readAll(s.T(), resp))
	s.Require().True(res.Success)
	s.Equal("S100:Juan Dela Cruz:WMAD 1-1", res.Data)

	resp = s.do(http.MethodGet, "/qr?id=S100", nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *APISuite) TestStatsAndMetrics() {
	s.do(http.MethodPost, "/registry", map[string]string{"id": "S1", "name": "Ana"})
	s.do(http.MethodPost, "/scan", map[string]string{"text": "S1"})
	s.do(http.MethodPost, "/scan", map[string]string{"text": "S2:Ben"})

	resp := s.do(http.MethodGet, "/stats", nil)
	stats := decode[statsResponse](s, resp)
	s.Equal(2, stats.UniqueStudents)
	s.Equal(1, stats.Registered)
	s.Len(stats.Buckets, 1)

	resp = s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	text := string(readAll(s.T(), resp).Data)
	s.Contains(text, `qrattend_scans_total{state="recorded"} 2`)
	s.Contains(text, "qrattend_registered_students 1")
}

func readAll(t *testing.T, resp *http.Response) scanner.File {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return scanner.File{Name: "qr.png", Data: buf.Bytes()}
}
