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

// Program shjpegd serves JPEG decoding and encoding over HTTP using the JPU,
// see package httpcodec for the API.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stapelberg/shjpeg"
	"github.com/stapelberg/shjpeg/internal/httpcodec"
	"github.com/stapelberg/shjpeg/internal/jpusim"
	"github.com/stapelberg/shjpeg/internal/mayqtt"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/trace"
	"golang.org/x/sync/errgroup"

	_ "net/http/pprof"
)

// listenAddr turns the address of ln into something users can connect to.
func listenAddr(ln net.Listener) string {
	addr := ln.Addr().String()
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			addr = "localhost"
			if port != "" {
				addr += ":" + port
			}
		}
	} else if strings.HasPrefix(addr, "[::]") {
		host, _ := os.Hostname()
		if host == "" {
			host = "localhost"
		}
		addr = host + strings.TrimPrefix(addr, "[::]")
	}
	return addr
}

func logic() error {
	stateDir := flag.String("state_dir",
		"/perm/shjpegd-state",
		"Directory containing state such as the TLS certificate cache.")

	httpListenAddr := flag.String("http_listen_address",
		"localhost:7130",
		"[host]:port to listen on for HTTP requests")

	httpsListenAddr := flag.String("https_listen_address",
		":https",
		"[host]:port to listen on for HTTPS requests. This is a no-op unless -tls_autocert_hosts is non-empty.")

	autocertHostList := flag.String("tls_autocert_hosts",
		"",
		"If non-empty, a comma-separated list of hostnames to obtain TLS certificates for. If non-empty, a TLS listener will be enabled on -https_listen_address")

	mqttBroker := flag.String("mqtt_broker",
		"",
		"If non-empty, an MQTT broker (e.g. tcp://dr.lan:1883) to publish status to and to receive policy changes from")

	policyName := flag.String("policy",
		"auto",
		"default policy of requests: auto, hardware or software")

	quality := flag.Int("quality", 0, "default JPEG quality of the software encoder")
	simulate := flag.Bool("simulate", false, "use a simulated JPU instead of the hardware of this machine")
	verbose := flag.Bool("verbose", false, "log every codec operation")

	flag.Parse()

	log.Printf("shjpegd starting")

	policy, err := shjpeg.ParsePolicy(*policyName)
	if err != nil {
		return err
	}

	manager := shjpeg.DefaultManager()
	if *simulate {
		manager = shjpeg.NewManager(jpusim.New(jpusim.Options{}).Open)
	}
	// Keep the hardware open instead of opening it for every request.
	keep, err := shjpeg.NewContext(manager, *verbose)
	if err != nil {
		return err
	}
	defer shjpeg.Shutdown(keep)

	srv := &httpcodec.Server{
		Manager: manager,
		Policy:  policy,
		Verbose: *verbose,
		Quality: *quality,
		OnResult: func(res httpcodec.Result) {
			mayqtt.PublishJSON(res)
		},
	}

	eg, ctx := errgroup.WithContext(context.Background())

	if *mqttBroker != "" {
		policies := make(chan string, 1)
		// makes mayqtt.Publishf() work as a side effect:
		mayqtt.MQTT(*mqttBroker, "shjpegd", policies)
		mayqtt.Publishf("ready, policy %v", policy)
		eg.Go(func() error {
			for {
				select {
				case name := <-policies:
					p, err := shjpeg.ParsePolicy(name)
					if err != nil {
						log.Printf("mqtt: %v", err)
						continue
					}
					log.Printf("policy changed to %v", p)
					srv.SetPolicy(p)
					mayqtt.Publishf("ready, policy %v", p)
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	type serveFunc struct {
		serve    func() error
		shutdown func() error
	}
	var serveFuncs []serveFunc

	if *autocertHostList != "" {
		var hosts []string
		for _, host := range strings.Split(*autocertHostList, ",") {
			host = strings.TrimSpace(host)
			if host == "" {
				continue
			}
			hosts = append(hosts, host)
		}

		m := &autocert.Manager{
			Cache:      autocert.DirCache(filepath.Join(*stateDir, "autocert")),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(hosts...),
		}
		s := &http.Server{
			Addr:      *httpsListenAddr,
			TLSConfig: m.TLSConfig(),
		}
		for _, host := range hosts {
			log.Printf("listening on https://%s", host)
		}

		ln, err := net.Listen("tcp", s.Addr)
		if err != nil {
			return err
		}
		serveFuncs = append(serveFuncs, serveFunc{
			serve: func() error {
				defer ln.Close()

				return s.ServeTLS(ln, "", "")
			},
			shutdown: func() error {
				timeout, canc := context.WithTimeout(context.Background(), 250*time.Millisecond)
				defer canc()
				return s.Shutdown(timeout)
			},
		})
	}

	ln, err := net.Listen("tcp", *httpListenAddr)
	if err != nil {
		return err
	}
	log.Printf("listening on http://%s", listenAddr(ln))
	hs := &http.Server{}
	serveFuncs = append(serveFuncs, serveFunc{
		serve: func() error {
			return hs.Serve(ln)
		},
		shutdown: func() error {
			timeout, canc := context.WithTimeout(context.Background(), 250*time.Millisecond)
			defer canc()
			return hs.Shutdown(timeout)
		},
	})

	http.Handle("/api/", http.StripPrefix("/api", srv.ServeMux()))

	// for /debug/requests:
	trace.AuthRequest = func(req *http.Request) (bool, bool) {
		// RemoteAddr is commonly in the form "IP" or "IP:port".
		// If it is in the form "IP:port", split off the port.
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return false, false
		}
		if ip.IsLoopback() || ip.IsPrivate() {
			return true, true
		}
		return false, false
	}

	for _, sf := range serveFuncs {
		sf := sf // copy
		eg.Go(func() error {
			errC := make(chan error)
			go func() {
				errC <- sf.serve()
			}()
			select {
			case err := <-errC:
				return err
			case <-ctx.Done():
				if err := sf.shutdown(); err != nil {
					log.Printf("shutting down listener: %v", err)
				}
				return ctx.Err()
			}
		})
	}

	return eg.Wait()
}

func main() {
	if err := logic(); err != nil {
		log.Fatal(err)
	}
}
