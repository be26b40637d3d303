package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/warboard/go/internal/models"
	"github.com/mcdev12/warboard/go/internal/store"
	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func testServiceConfig() Config {
	config := DefaultConfig()
	config.ConnectionConfig.RefreshInterval = 20 * time.Millisecond
	config.ConnectionConfig.HeartbeatInterval = time.Second
	config.ConnectionConfig.LivenessTimeout = 3 * time.Second
	config.APIRateLimit = 0
	return config
}

func readState(conn *websocket.Conn) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func TestServiceEndToEnd(t *testing.T) {
	Convey("Given a gateway serving an in-memory store", t, func() {
		mem := store.NewMemory()
		mem.Put("w1", testWar(8, -4))

		service := NewService(testServiceConfig(), mem)
		mux := http.NewServeMux()
		service.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()
		defer service.Stop()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"

		Convey("An overlay client receives the state and every change", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL+"w1", nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			payload, err := readState(conn)
			So(err, ShouldBeNil)
			So(payload["team_tag"], ShouldEqual, "Lx")
			So(payload["total_diff"], ShouldEqual, 4.0)
			So(payload["races_remaining"], ShouldEqual, 10.0)

			mem.Put("w1", testWar(8, -4, 12))
			payload, err = readState(conn)
			So(err, ShouldBeNil)
			So(payload["total_diff"], ShouldEqual, 16.0)
			So(payload["last_diff"], ShouldEqual, 12.0)

			mem.Delete("w1")
			payload, err = readState(conn)
			So(err, ShouldBeNil)
			So(payload, ShouldResemble, map[string]any{"error": "unavailable"})

			Convey("And the session is listed in the stats", func() {
				resp, err := http.Get(srv.URL + "/ws/stats")
				So(err, ShouldBeNil)
				defer resp.Body.Close()

				var stats ConnectionStats
				So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)
				So(stats.TotalConnections, ShouldEqual, 1)
				So(stats.WarConnections["w1"], ShouldEqual, 1)
			})
		})

		Convey("A client of a missing war gets the sentinel first", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL+"nope", nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			payload, err := readState(conn)
			So(err, ShouldBeNil)
			So(payload, ShouldResemble, map[string]any{"error": "unavailable"})
		})

		Convey("Sessions of the same war are independent", func() {
			first, _, err := websocket.DefaultDialer.Dial(wsURL+"w1", nil)
			So(err, ShouldBeNil)
			defer first.Close()
			_, err = readState(first)
			So(err, ShouldBeNil)

			mem.Put("w1", testWar(8, -4, 2))
			_, err = readState(first)
			So(err, ShouldBeNil)

			second, _, err := websocket.DefaultDialer.Dial(wsURL+"w1", nil)
			So(err, ShouldBeNil)
			defer second.Close()

			payload, err := readState(second)
			So(err, ShouldBeNil)
			So(payload["total_diff"], ShouldEqual, 6.0)
		})

		Convey("A nudge reaches the sessions of that war", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL+"w1", nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			_, err = readState(conn)
			So(err, ShouldBeNil)

			So(service.connectionManager.Nudge("w1"), ShouldEqual, 1)
			So(service.connectionManager.Nudge("w2"), ShouldEqual, 0)
		})

		Convey("Shutting down closes open sessions", func() {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL+"w1", nil)
			So(err, ShouldBeNil)
			defer conn.Close()
			_, err = readState(conn)
			So(err, ShouldBeNil)

			So(service.Stop(), ShouldBeNil)
			So(service.GetStats().TotalConnections, ShouldEqual, 0)

			_, _, err = conn.ReadMessage()
			So(websocket.IsCloseError(err, websocket.CloseGoingAway), ShouldBeTrue)
		})

		Convey("The query-once endpoint returns the state", func() {
			resp, err := http.Get(srv.URL + "/api/w1")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var state models.OverlayState
			So(json.NewDecoder(resp.Body).Decode(&state), ShouldBeNil)
			So(state.OpponentTag, ShouldEqual, "Ve")
			So(state.HomeScore, ShouldEqual, 84)
			So(state.OpponentScore, ShouldEqual, 80)
		})

		Convey("The query-once endpoint returns null for a missing war", func() {
			resp, err := http.Get(srv.URL + "/api/nope")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(string(body)), ShouldEqual, "null")
		})

		Convey("The RPC endpoint answers with a struct or null", func() {
			client := connect.NewClient[wrapperspb.StringValue, structpb.Value](
				srv.Client(), srv.URL+OverlayServiceGetOverlayProcedure,
			)

			resp, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("w1")))
			So(err, ShouldBeNil)
			fields := resp.Msg.GetStructValue().GetFields()
			So(fields["team_tag"].GetStringValue(), ShouldEqual, "Lx")
			So(fields["total_diff"].GetNumberValue(), ShouldEqual, 4.0)
			So(fields["last_diff"].GetNumberValue(), ShouldEqual, -4.0)

			resp, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("nope")))
			So(err, ShouldBeNil)
			_, isNull := resp.Msg.GetKind().(*structpb.Value_NullValue)
			So(isNull, ShouldBeTrue)

			_, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("")))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeInvalidArgument)
		})

		Convey("The overlay page renders the current state", func() {
			resp, err := http.Get(srv.URL + "/overlay/w1")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "Lx vs Ve")
			So(string(body), ShouldContainSubstring, "race left: 10")
			So(string(body), ShouldContainSubstring, `score-dif plus`)
		})

		Convey("The overlay page of a missing war is not found", func() {
			resp, err := http.Get(srv.URL + "/overlay/nope")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(strings.TrimSpace(string(body)), ShouldEqual, "Data not found")
		})
	})
}

func TestStateHandlerRateLimit(t *testing.T) {
	Convey("Given a state handler allowing one request", t, func() {
		mem := store.NewMemory()
		mem.Put("w1", testWar(8))
		handler := NewStateHandler(NewPoller(mem, time.Second, nil), 0.001, 1)
		mux := http.NewServeMux()
		handler.RegisterStateRoutes(mux)

		Convey("The second request is rejected", func() {
			first := httptest.NewRecorder()
			mux.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/w1", nil))
			So(first.Code, ShouldEqual, http.StatusOK)

			second := httptest.NewRecorder()
			mux.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/w1", nil))
			So(second.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("The RPC form shares the limit", func() {
			srv := httptest.NewServer(mux)
			defer srv.Close()
			client := connect.NewClient[wrapperspb.StringValue, structpb.Value](
				srv.Client(), srv.URL+OverlayServiceGetOverlayProcedure,
			)

			_, err := client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("w1")))
			So(err, ShouldBeNil)
			_, err = client.CallUnary(context.Background(), connect.NewRequest(wrapperspb.String("w1")))
			So(connect.CodeOf(err), ShouldEqual, connect.CodeResourceExhausted)
		})
	})
}

// readUntilError keeps reading so control frames are processed, and reports
// the first read error.
func readUntilError(conn *websocket.Conn) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			errCh <- err
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()
	return errCh
}

func TestSessionLivenessOverWebSocket(t *testing.T) {
	Convey("Given a gateway with a short heartbeat", t, func() {
		mem := store.NewMemory()
		mem.Put("w1", testWar(8))

		config := testServiceConfig()
		config.ConnectionConfig.HeartbeatInterval = 100 * time.Millisecond
		config.ConnectionConfig.LivenessTimeout = 250 * time.Millisecond

		service := NewService(config, mem)
		mux := http.NewServeMux()
		service.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()
		defer service.Stop()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/w1"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		So(err, ShouldBeNil)
		defer conn.Close()
		_, err = readState(conn)
		So(err, ShouldBeNil)

		Convey("A client answering pings outlives several timeouts", func() {
			errCh := readUntilError(conn)

			select {
			case err := <-errCh:
				So(err, ShouldBeNil)
			case <-time.After(time.Second):
			}
			So(service.GetStats().TotalConnections, ShouldEqual, 1)
		})

		Convey("A client ignoring pings is closed for liveness", func() {
			conn.SetPingHandler(func(string) error { return nil })
			errCh := readUntilError(conn)

			var err error
			select {
			case err = <-errCh:
			case <-time.After(2 * time.Second):
			}
			So(websocket.IsCloseError(err, websocket.CloseGoingAway), ShouldBeTrue)
			var closeErr *websocket.CloseError
			So(errors.As(err, &closeErr), ShouldBeTrue)
			So(closeErr.Text, ShouldEqual, "liveness timeout")
		})

		Convey("A client sending its own pings stays connected", func() {
			conn.SetPingHandler(func(string) error { return nil })
			errCh := readUntilError(conn)

			stop := make(chan struct{})
			pingerDone := make(chan struct{})
			go func() {
				defer close(pingerDone)
				ticker := time.NewTicker(50 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
							return
						}
					}
				}
			}()

			select {
			case err := <-errCh:
				So(err, ShouldBeNil)
			case <-time.After(time.Second):
			}
			close(stop)
			<-pingerDone
			So(service.GetStats().TotalConnections, ShouldEqual, 1)
		})
	})
}

func TestConnectionManagerShutdown(t *testing.T) {
	Convey("Given a gateway being shut down while clients connect", t, func() {
		mem := store.NewMemory()
		mem.Put("w1", testWar(8))

		service := NewService(testServiceConfig(), mem)
		mux := http.NewServeMux()
		service.RegisterRoutes(mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/w1"

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
				if err != nil {
					return
				}
				defer conn.Close()
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				for {
					if _, _, err := conn.ReadMessage(); err != nil {
						return
					}
				}
			}()
		}

		So(service.Stop(), ShouldBeNil)
		wg.Wait()
		So(service.GetStats().TotalConnections, ShouldEqual, 0)

		Convey("New connections are refused", func() {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
			So(err, ShouldEqual, websocket.ErrBadHandshake)
			So(resp, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			resp.Body.Close()
		})
	})
}
