// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpcodec_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stapelberg/shjpeg"
	"github.com/stapelberg/shjpeg/internal/httpcodec"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/softconv"
)

type testServer struct {
	*httptest.Server
	sim *jpusim.Sim
	srv *httpcodec.Server

	mu      sync.Mutex
	results []httpcodec.Result
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{sim: jpusim.New(jpusim.Options{})}
	ts.srv = &httpcodec.Server{
		Manager: shjpeg.NewManager(ts.sim.Open),
		OnResult: func(res httpcodec.Result) {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			ts.results = append(ts.results, res)
		},
	}
	ts.Server = httptest.NewServer(ts.srv.ServeMux())
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) post(t *testing.T, path, contentType string, header http.Header, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, b
}

func gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(255 * x / width), uint8(255 * y / height), 0x80, 0xff})
		}
	}
	return img
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(width, height), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func near(a, b uint8, tolerance int) bool {
	d := int(a) - int(b)
	return d >= -tolerance && d <= tolerance
}

func TestDecodePNG(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.post(t, "/decode/rgb32?output=png", "image/jpeg", nil, testJPEG(t, 64, 48))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	if got, want := resp.Header.Get("Content-Type"), "image/png"; got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
	if got, want := resp.Header.Get("X-Shjpeg-Software"), "false"; got != want {
		t.Errorf("X-Shjpeg-Software = %q, want %q", got, want)
	}
	if resp.Header.Get("X-Shjpeg-Job") == "" {
		t.Errorf("X-Shjpeg-Job header missing")
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, 64, 48); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
	want := gradient(64, 48).RGBAAt(32, 24)
	r, g, b, _ := img.At(32, 24).RGBA()
	if !near(uint8(r>>8), want.R, 8) || !near(uint8(g>>8), want.G, 8) || !near(uint8(b>>8), want.B, 8) {
		t.Errorf("pixel (32, 24) = (%d, %d, %d), want approximately %v", r>>8, g>>8, b>>8, want)
	}
	if got, want := ts.sim.Stats().Runs, 1; got != want {
		t.Errorf("hardware runs = %d, want %d", got, want)
	}
}

func TestDecodeRawZstd(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.post(t, "/decode/nv12?compress=zstd", "image/jpeg", nil, testJPEG(t, 64, 48))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	pitch, err := strconv.Atoi(resp.Header.Get("X-Shjpeg-Pitch"))
	if err != nil {
		t.Fatal(err)
	}
	if pitch != 64 {
		t.Errorf("pitch = %d, want 64", pitch)
	}
	dec, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	raw, err := ioutil.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(raw), shjpeg.NV12.PlaneBytes(48, pitch); got != want {
		t.Fatalf("raw NV12 size = %d, want %d", got, want)
	}
}

func TestDecodeSoftwarePolicy(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.post(t, "/decode/rgb24?policy=software&output=bmp", "image/jpeg", nil, testJPEG(t, 40, 30))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	if got, want := resp.Header.Get("X-Shjpeg-Software"), "true"; got != want {
		t.Errorf("X-Shjpeg-Software = %q, want %q", got, want)
	}
	if got := ts.sim.Stats().Runs; got != 0 {
		t.Errorf("hardware runs = %d, want 0", got)
	}
}

func rawRGB32(t *testing.T, width, height int) []byte {
	t.Helper()
	buf := make([]byte, shjpeg.RGB32.PlaneBytes(height, 4*width))
	im, err := softconv.NewImage(shjpeg.RGB32, buf, width, height, 4*width)
	if err != nil {
		t.Fatal(err)
	}
	softconv.Draw(im, gradient(width, height))
	return buf
}

func checkJPEG(t *testing.T, body []byte, width, height int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got, want := img.Bounds(), image.Rect(0, 0, width, height); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
}

func TestEncodeRaw(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.post(t, "/encode/rgb32?width=64&height=48", "application/octet-stream", nil, rawRGB32(t, 64, 48))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	checkJPEG(t, body, 64, 48)
	if got, want := resp.Header.Get("X-Shjpeg-Software"), "false"; got != want {
		t.Errorf("X-Shjpeg-Software = %q, want %q", got, want)
	}
}

func TestEncodeZstd(t *testing.T) {
	ts := newTestServer(t)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(rawRGB32(t, 64, 48), nil)
	enc.Close()
	header := http.Header{"Content-Encoding": []string{"zstd"}}
	resp, body := ts.post(t, "/encode/rgb32?width=64&height=48", "application/octet-stream", header, compressed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	checkJPEG(t, body, 64, 48)
}

func TestEncodePNG(t *testing.T) {
	ts := newTestServer(t)
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(50, 30)); err != nil {
		t.Fatal(err)
	}
	resp, body := ts.post(t, "/encode/nv16", "image/png", nil, buf.Bytes())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	checkJPEG(t, body, 50, 30)
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)
	for _, tt := range []struct {
		name string
		path string
		body []byte
		want int
	}{
		{"unknown format", "/decode/yuyv", testJPEG(t, 16, 16), http.StatusNotFound},
		{"bad policy", "/decode/nv12?policy=fastest", testJPEG(t, 16, 16), http.StatusBadRequest},
		{"corrupt", "/decode/nv12", []byte("not a jpeg at all"), http.StatusUnprocessableEntity},
		{"missing size", "/encode/rgb32", make([]byte, 64), http.StatusBadRequest},
		{"short body", "/encode/rgb32?width=64&height=48", make([]byte, 64), http.StatusBadRequest},
		{"bad pitch", "/encode/rgb32?width=64&height=48&pitch=8", make([]byte, 64*48*4), http.StatusBadRequest},
	} {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.post(t, tt.path, "application/octet-stream", nil, tt.body)
			if got := resp.StatusCode; got != tt.want {
				t.Errorf("HTTP status = %d (%s), want %d", got, body, tt.want)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/decode/nv12")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got, want := resp.StatusCode, http.StatusMethodNotAllowed; got != want {
		t.Errorf("GET /decode/nv12: HTTP status = %d, want %d", got, want)
	}
}

func TestHardwareOnlyStall(t *testing.T) {
	ts := newTestServer(t)
	ts.sim.SetStall(true)
	resp, body := ts.post(t, "/decode/nv12?policy=hardware", "image/jpeg", nil, testJPEG(t, 64, 48))
	if got, want := resp.StatusCode, http.StatusServiceUnavailable; got != want {
		t.Errorf("HTTP status = %d (%s), want %d", got, body, want)
	}

	resp, body = ts.post(t, "/decode/nv12", "image/jpeg", nil, testJPEG(t, 64, 48))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	if got, want := resp.Header.Get("X-Shjpeg-Software"), "true"; got != want {
		t.Errorf("X-Shjpeg-Software = %q, want %q", got, want)
	}
}

func TestStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.post(t, "/decode/nv12", "image/jpeg", nil, testJPEG(t, 32, 32))
	ts.post(t, "/decode/nv12", "image/jpeg", nil, []byte("garbage"))
	ts.post(t, "/encode/rgb32?width=64&height=48", "application/octet-stream", nil, rawRGB32(t, 64, 48))

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st httpcodec.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Decodes != 2 || st.Encodes != 1 || st.Errors != 1 {
		t.Errorf("stats = %+v, want 2 decodes, 1 encode, 1 error", st)
	}
	if st.Last == nil || st.Last.Op != "encode" || st.Last.Width != 64 {
		t.Errorf("last result = %+v, want the 64 pixel wide encode", st.Last)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if got, want := len(ts.results), 3; got != want {
		t.Fatalf("OnResult called %d times, want %d", got, want)
	}
	if ts.results[1].Error == "" {
		t.Errorf("result of the garbage decode has no error")
	}
	if ts.results[0].Job == ts.results[2].Job {
		t.Errorf("job ids are not unique: %q", ts.results[0].Job)
	}
}

func TestSetPolicy(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.SetPolicy(shjpeg.PolicySoftwareOnly)
	resp, body := ts.post(t, "/decode/nv12", "image/jpeg", nil, testJPEG(t, 32, 32))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: got %v (%s), want OK", resp.Status, body)
	}
	if got, want := resp.Header.Get("X-Shjpeg-Software"), "true"; got != want {
		t.Errorf("X-Shjpeg-Software = %q, want %q", got, want)
	}
	if got := ts.srv.Stats().Software; got != 1 {
		t.Errorf("software count = %d, want 1", got)
	}
}
