package client

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fxbridge/mlclient/internal/conn"
	"github.com/fxbridge/mlclient/internal/raster"
	"github.com/fxbridge/mlclient/internal/wire"
)

// stubServer implements the framed protocol in-process: it answers info
// requests with a fixed model list and echoes the first input raster of
// inference requests.
type stubServer struct {
	ln         net.Listener
	models     []wire.ModelInfo
	inferences atomic.Int64

	mu      sync.Mutex
	failMsg string
	corrupt bool
	reorder bool
}

func newStubServer(t *testing.T, models []wire.ModelInfo) *stubServer {
	t.Helper()
	return newStubServerAt(t, "127.0.0.1:0", models)
}

func newStubServerAt(t *testing.T, addr string, models []wire.ModelInfo) *stubServer {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &stubServer{ln: ln, models: models}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) Close() { _ = s.ln.Close() }

func (s *stubServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (s *stubServer) setFailure(msg string) {
	s.mu.Lock()
	s.failMsg = msg
	s.mu.Unlock()
}

func (s *stubServer) corruptNext() {
	s.mu.Lock()
	s.corrupt = true
	s.mu.Unlock()
}

// reorderEachInfo makes every capability response advertise the models in a
// different order than the previous one.
func (s *stubServer) reorderEachInfo() {
	s.mu.Lock()
	s.reorder = true
	s.mu.Unlock()
}

func (s *stubServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(c)
	}
}

func (s *stubServer) serveConn(c net.Conn) {
	defer func() { _ = c.Close() }()
	for {
		hdr := make([]byte, wire.HeaderSize)
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		n, err := wire.DecodeHeader(hdr)
		if err != nil {
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(c, body); err != nil {
			return
		}

		s.mu.Lock()
		corrupt := s.corrupt
		s.corrupt = false
		failMsg := s.failMsg
		s.mu.Unlock()

		if corrupt {
			garbage := []byte("{not json")
			var hdr [wire.HeaderSize]byte
			binary.BigEndian.PutUint32(hdr[:], uint32(len(garbage)))
			_, _ = c.Write(append(hdr[:], garbage...))
			continue
		}

		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return
		}
		var frame []byte
		if _, isInfo := probe["info"]; isInfo {
			s.mu.Lock()
			if s.reorder {
				for i, j := 0, len(s.models)-1; i < j; i, j = i+1, j-1 {
					s.models[i], s.models[j] = s.models[j], s.models[i]
				}
			}
			models := append([]wire.ModelInfo(nil), s.models...)
			s.mu.Unlock()
			frame, _ = wire.Encode(wire.InfoResponse{Models: models})
		} else {
			var req wire.InferenceRequest
			if err := json.Unmarshal(body, &req); err != nil {
				return
			}
			s.inferences.Add(1)
			if failMsg != "" {
				frame, _ = wire.Encode(wire.InferenceResponse{OK: false, Error: failMsg})
			} else {
				out := req.Inputs[0]
				frame, _ = wire.Encode(wire.InferenceResponse{OK: true, Output: &out})
			}
		}
		if _, err := c.Write(frame); err != nil {
			return
		}
	}
}

func testModels() []wire.ModelInfo {
	return []wire.ModelInfo{
		{
			Name:       "blur",
			InputCount: 1,
			InputNames: []string{"src"},
			Params: []wire.Param{
				{Name: "strength", Type: wire.ParamFloat, FloatDefault: 0.5},
			},
		},
		{
			Name:       "merge",
			InputCount: 2,
			InputNames: []string{"A", "B"},
			Params: []wire.Param{
				{Name: "mode", Type: wire.ParamString, StringDefault: "over"},
				{Name: "mix", Type: wire.ParamFloat, FloatDefault: 1},
			},
		},
	}
}

func testInput() raster.Image {
	im := raster.New(64, 64, 3)
	for i := range im.Pix {
		im.Pix[i] = float32(i%255) / 255
	}
	return im
}

func connectedClient(t *testing.T) (*Client, *stubServer) {
	t.Helper()
	srv := newStubServer(t, testModels())
	host, port := srv.hostPort(t)
	c := New(host, port)
	t.Cleanup(c.Close)
	if _, err := c.FetchModels(context.Background()); err != nil {
		t.Fatalf("fetch models: %v", err)
	}
	return c, srv
}

func TestFetchModelsPopulatesDescriptors(t *testing.T) {
	c, _ := connectedClient(t)
	models := c.Models()
	if len(models) != 2 {
		t.Fatalf("model count: %d", len(models))
	}
	if models[0].Name != "blur" || models[0].InputCount != 1 {
		t.Fatalf("descriptor: %+v", models[0])
	}
}

func TestSelectModelBuildsOptionSet(t *testing.T) {
	c, _ := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	views := c.OptionViews()
	if len(views) != 1 {
		t.Fatalf("option count: %d", len(views))
	}
	if views[0].Name != "strength" || views[0].Type != wire.ParamFloat || views[0].Value != 0.5 {
		t.Fatalf("option view: %+v", views[0])
	}
}

func TestReselectSameIndexPreservesValues(t *testing.T) {
	c, _ := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.SetOption("strength", 0.9); err != nil {
		t.Fatalf("set option: %v", err)
	}
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if v, _ := c.Option("strength"); v != 0.9 {
		t.Fatalf("value lost on reselect: %v", v)
	}
	if err := c.SelectModel(1); err != nil {
		t.Fatalf("select other: %v", err)
	}
	if _, ok := c.Option("strength"); ok {
		t.Fatal("stale option after switching models")
	}
	if v, _ := c.Option("mode"); v != "over" {
		t.Fatalf("new defaults not applied: %v", v)
	}
}

func TestSelectModelOutOfRange(t *testing.T) {
	c, _ := connectedClient(t)
	if err := c.SelectModel(5); !errors.Is(err, ErrNoModel) {
		t.Fatalf("got %v, want ErrNoModel", err)
	}
}

func TestRunInferenceEcho(t *testing.T) {
	c, _ := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.SetOption("strength", 0.8); err != nil {
		t.Fatalf("set option: %v", err)
	}
	in := testInput()
	out, err := c.RunInference(context.Background(), []raster.Image{in})
	if err != nil {
		t.Fatalf("inference: %v", err)
	}
	if out.Width != 64 || out.Height != 64 || out.Channels != 3 {
		t.Fatalf("output shape: %dx%dx%d", out.Width, out.Height, out.Channels)
	}
	for i := range in.Pix {
		if out.Pix[i] != in.Pix[i] {
			t.Fatalf("sample %d: got %v want %v", i, out.Pix[i], in.Pix[i])
		}
	}
}

func TestRunInferenceInputMismatchDoesNoIO(t *testing.T) {
	c, srv := connectedClient(t)
	if err := c.SelectModel(1); err != nil { // merge wants 2 inputs
		t.Fatalf("select: %v", err)
	}
	_, err := c.RunInference(context.Background(), []raster.Image{testInput()})
	if !errors.Is(err, ErrInputMismatch) {
		t.Fatalf("got %v, want ErrInputMismatch", err)
	}
	if n := srv.inferences.Load(); n != 0 {
		t.Fatalf("server saw %d inference requests, want 0", n)
	}
}

func TestRunInferenceWithoutSelection(t *testing.T) {
	c, _ := connectedClient(t)
	if _, err := c.RunInference(context.Background(), nil); !errors.Is(err, ErrNoModel) {
		t.Fatalf("got %v, want ErrNoModel", err)
	}
}

func TestServerFailureSurfacesAndRetainsResult(t *testing.T) {
	c, srv := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	in := testInput()
	first, err := c.RunInference(context.Background(), []raster.Image{in})
	if err != nil {
		t.Fatalf("inference: %v", err)
	}

	srv.setFailure("CUDA out of memory")
	_, err = c.RunInference(context.Background(), []raster.Image{in})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("got %v, want ErrInference", err)
	}
	kept, ok := c.LastResult()
	if !ok || kept.Digest() != first.Digest() {
		t.Fatal("prior result not retained after server failure")
	}

	// An inference error leaves the connection usable.
	srv.setFailure("")
	if _, err := c.RunInference(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("inference after server error: %v", err)
	}
}

func TestConnectionRefusedThenRecovers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)

	c := New(host, port)
	t.Cleanup(c.Close)
	if _, err := c.FetchModels(context.Background()); !errors.Is(err, conn.ErrConnection) {
		t.Fatalf("got %v, want ErrConnection", err)
	}

	newStubServerAt(t, addr, testModels())
	if _, err := c.FetchModels(context.Background()); err != nil {
		t.Fatalf("fetch after server came up: %v", err)
	}
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := c.RunInference(context.Background(), []raster.Image{testInput()}); err != nil {
		t.Fatalf("inference after recovery: %v", err)
	}
}

func TestFetchFailureKeepsCachedModels(t *testing.T) {
	c, srv := connectedClient(t)
	srv.Close()
	c.Close() // drop the live socket so the next exchange must redial
	if _, err := c.FetchModels(context.Background()); err == nil {
		t.Fatal("expected fetch failure after server shutdown")
	}
	if len(c.Models()) != 2 {
		t.Fatal("cached model list erased by transient failure")
	}
}

func TestDecodeFailureInvalidatesConnection(t *testing.T) {
	c, srv := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	srv.corruptNext()
	in := testInput()
	_, err := c.RunInference(context.Background(), []raster.Image{in})
	if !errors.Is(err, wire.ErrDecode) {
		t.Fatalf("got %v, want ErrDecode", err)
	}
	// The stream was abandoned; the next call reconnects and succeeds.
	if _, err := c.RunInference(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("inference after reconnect: %v", err)
	}
}

func TestFetchModelsPreservesSelectionWhenSchemaUnchanged(t *testing.T) {
	c, _ := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.SetOption("strength", 0.7); err != nil {
		t.Fatalf("set option: %v", err)
	}
	if _, err := c.FetchModels(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.SelectedIndex() != 0 {
		t.Fatalf("selection lost: %d", c.SelectedIndex())
	}
	if v, _ := c.Option("strength"); v != 0.7 {
		t.Fatalf("edited value lost on refresh: %v", v)
	}
}

func TestSelectByNameDuringConcurrentRefresh(t *testing.T) {
	c, srv := connectedClient(t)
	srv.reorderEachInfo()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := c.FetchModels(context.Background()); err != nil {
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if err := c.SelectModelByName("merge"); err != nil {
			t.Fatalf("select by name: %v", err)
		}
		if m, ok := c.SelectedModel(); !ok || m.Name != "merge" {
			t.Fatalf("selected %q after selecting merge by name", m.Name)
		}
	}
	<-done
}

func TestRenderSingleFlight(t *testing.T) {
	c, srv := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	in := testInput()
	const workers = 8
	var wg sync.WaitGroup
	results := make([]raster.Image, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Render(context.Background(), []raster.Image{in})
		}(i)
	}
	wg.Wait()
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if results[i].Digest() != results[0].Digest() {
			t.Fatalf("worker %d observed a different raster", i)
		}
	}
	if n := srv.inferences.Load(); n != 1 {
		t.Fatalf("server saw %d exchanges for one frame, want 1", n)
	}
}

func TestRenderRerunsWhenStateChanges(t *testing.T) {
	c, srv := connectedClient(t)
	if err := c.SelectModel(0); err != nil {
		t.Fatalf("select: %v", err)
	}
	in := testInput()
	if _, err := c.Render(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := c.Render(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("cached render: %v", err)
	}
	if n := srv.inferences.Load(); n != 1 {
		t.Fatalf("unchanged state re-ran inference: %d exchanges", n)
	}

	if err := c.SetOption("strength", 0.3); err != nil {
		t.Fatalf("set option: %v", err)
	}
	if _, err := c.Render(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("render after edit: %v", err)
	}
	if n := srv.inferences.Load(); n != 2 {
		t.Fatalf("option edit did not trigger a re-run: %d exchanges", n)
	}

	in.Pix[0] = 0.123
	if _, err := c.Render(context.Background(), []raster.Image{in}); err != nil {
		t.Fatalf("render after pixel change: %v", err)
	}
	if n := srv.inferences.Load(); n != 3 {
		t.Fatalf("content change did not trigger a re-run: %d exchanges", n)
	}
}
