//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"flowengine/internal/config"
	"flowengine/internal/domain"
	"flowengine/internal/infra"
	"flowengine/internal/policy"
	"flowengine/internal/server"
	"flowengine/internal/usecase"
)

// manualClock lets specs move session time deterministically.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var _ = Describe("Flow Engine", func() {
	var (
		tmpDir  string
		store   *infra.EncryptedStore
		engine  *usecase.Engine
		clock   *manualClock
		api     *httptest.Server
		baseURL string
	)

	post := func(path, body string) map[string]interface{} {
		resp, err := http.Post(baseURL+path, "application/json", bytes.NewBufferString(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out map[string]interface{}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	get := func(path string) map[string]interface{} {
		resp, err := http.Get(baseURL + path)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var out map[string]interface{}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "flowengine-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err := infra.GenerateKey()
		Expect(err).NotTo(HaveOccurred())
		store, err = infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.Default()
		cfg.DataDir = tmpDir
		rules := policy.NewRuleset(cfg.BlockedApps, cfg.DistractingKeywords, cfg.ProductiveKeywords)
		logger := zap.NewNop()

		clock = &manualClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
		engine = usecase.NewEngineWithClock(cfg, rules, nil,
			infra.NewLoggingEffects(logger), store, logger, clock.Now)
		analyzer := usecase.NewAnalyzer(store, logger)

		api = httptest.NewServer(server.New(engine, analyzer, logger).Handler())
		baseURL = api.URL
	})

	AfterEach(func() {
		api.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("manual session lifecycle", func() {
		It("earns XP from duration and session scores", func() {
			res := post("/api/start", "{}")
			Expect(res["status"]).To(Equal("started"))

			clock.Advance(25 * time.Minute)
			stop := post("/api/stop", "{}")
			Expect(stop["status"]).To(Equal("stopped"))
			Expect(stop["xp_earned"]).To(BeNumerically("==", 135)) // 125 base + 10 focus bonus

			status := get("/api/status")
			Expect(status["is_running"]).To(BeFalse())
			Expect(status["xp"]).To(BeNumerically("==", 135))
		})

		It("persists closed sessions into the encrypted store", func() {
			post("/api/start", "{}")
			clock.Advance(10 * time.Minute)
			post("/api/stop", "{}")

			Eventually(func() int {
				sessions, err := store.RecentSessions(10)
				if err != nil {
					return -1
				}
				return len(sessions)
			}, "2s", "50ms").Should(Equal(1))

			sessions, err := store.RecentSessions(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions[0].DurationSeconds).To(Equal(600))
		})
	})

	Describe("tri-layer auto start", func() {
		productiveWindow := `{"app_name":"code.exe","title":"main.go - Visual Studio Code"}`
		activeInput := `{"apm":45,"keyboard_events":50,"mouse_events":10,"scroll_events":0}`

		It("starts a session when all three layers hold for the threshold", func() {
			post("/api/activity/window", productiveWindow)
			post("/api/activity/input", activeInput)

			clock.Advance(9 * time.Minute)
			post("/api/activity/input", activeInput)
			Expect(get("/api/status")["is_running"]).To(BeFalse())

			clock.Advance(1 * time.Minute)
			post("/api/activity/input", activeInput)
			Expect(get("/api/status")["is_running"]).To(BeTrue())
		})

		It("does not start after a recent distraction", func() {
			post("/api/activity/window", productiveWindow)
			post("/api/activity/input", activeInput)

			clock.Advance(8 * time.Minute)
			post("/api/activity/window", `{"app_name":"chrome.exe","title":"reddit - front page"}`)
			post("/api/activity/window", productiveWindow)

			clock.Advance(2 * time.Minute)
			post("/api/activity/input", activeInput)
			Expect(get("/api/status")["is_running"]).To(BeFalse())
		})
	})

	Describe("intervention flow", func() {
		BeforeEach(func() {
			post("/api/start", "{}")
		})

		It("blocks a distracting URL and rewards waiting", func() {
			res := post("/api/activity/browser", `{"url":"https://netflix.com/browse","title":"Netflix"}`)
			Expect(res["status"]).To(Equal("intervention_triggered"))

			choice := post("/api/intervention/choice", `{"choice":"wait"}`)
			Expect(choice["status"]).To(Equal("applied"))
			Expect(choice["resilience"]).To(BeNumerically("==", 5))
			Expect(choice["stamina"]).To(BeNumerically("==", 10))

			// Resume bonus is lifetime XP, visible before the session ends.
			Expect(get("/api/status")["xp"]).To(BeNumerically("==", 10))
		})

		It("decays resilience while the user stays on the distraction", func() {
			post("/api/activity/browser", `{"url":"https://netflix.com/browse","title":"Netflix"}`)
			post("/api/intervention/choice", `{"choice":"wait"}`) // resilience 5

			post("/api/activity/window", `{"app_name":"steam.exe","title":"Steam"}`)
			post("/api/intervention/choice", `{"choice":"proceed"}`) // resilience 0, decay armed

			status := get("/api/status")
			Expect(status["resilience"]).To(BeNumerically("==", 0))

			clock.Advance(3 * time.Minute)
			engine.DecayTick()
			Expect(get("/api/status")["resilience"]).To(BeNumerically("==", 0))
		})
	})

	Describe("external penalty", func() {
		It("applies the watchdog penalty once per session", func() {
			post("/api/start", "{}")
			payload := `{"penalty_amount":15,"reason":"engine process forcefully terminated"}`

			first := post("/api/penalty/forceful-termination", payload)
			Expect(first["status"]).To(Equal("applied"))

			second := post("/api/penalty/forceful-termination", payload)
			Expect(second["status"]).To(Equal("already_applied"))
		})
	})

	Describe("cognitive profile", func() {
		It("is computed after the third completed session", func() {
			for i := 0; i < 3; i++ {
				post("/api/start", "{}")
				clock.Advance(30 * time.Minute)
				post("/api/stop", "{}")
			}

			Eventually(func() bool {
				u, err := store.GetOrCreateUser("Victus")
				if err != nil {
					return false
				}
				return u.Profile != nil
			}, "2s", "50ms").Should(BeTrue(), "profile should be persisted")

			u, err := store.GetOrCreateUser("Victus")
			Expect(err).NotTo(HaveOccurred())
			Expect(u.SessionsCompleted).To(Equal(3))
			Expect(u.Profile.Stamina).To(BeNumerically("~", 50, 1))
		})
	})

	Describe("learned patterns", func() {
		It("aggregates app usage into the summary endpoint", func() {
			for i := 0; i < 6; i++ {
				Expect(store.LogAppUsage("steam.exe", 0, false, true)).To(Succeed())
			}

			resp, err := http.Get(baseURL + "/api/patterns/summary")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var summary struct {
				LearnedPatterns struct {
					ProblematicApps []string `json:"problematic_apps"`
				} `json:"learned_patterns"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&summary)).To(Succeed())
			Expect(summary.LearnedPatterns.ProblematicApps).To(ContainElement("steam.exe"))
		})
	})
})
