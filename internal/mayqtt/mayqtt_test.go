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

package mayqtt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParsePolicy(t *testing.T) {
	for _, tt := range []struct {
		payload string
		want    string
	}{
		{`{"policy": "software"}`, "software"},
		{`hardware`, "hardware"},
		{`{}`, ""},
	} {
		if got := parsePolicy([]byte(tt.payload)); got != tt.want {
			t.Errorf("parsePolicy(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}

func TestPublishf(t *testing.T) {
	// Without a connection, messages are dropped.
	Publishf("idle")

	ch := make(chan PublishRequest, 10)
	mu.Lock()
	publish = ch
	lastStatus = ""
	mu.Unlock()
	defer func() {
		mu.Lock()
		publish = nil
		mu.Unlock()
	}()

	Publishf("decoding %d", 1)
	Publishf("decoding %d", 1)
	Publishf("idle")
	PublishJSON(map[string]int{"width": 64})
	close(ch)

	var got []string
	for r := range ch {
		got = append(got, r.Topic+" "+string(r.Payload.([]byte)))
	}
	want := []string{
		"shjpeg/status decoding 1",
		"shjpeg/status idle",
		`shjpeg/result {"width":64}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("published messages: unexpected difference (-want +got):\n%s", diff)
	}
}
