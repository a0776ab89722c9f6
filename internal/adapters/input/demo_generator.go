package input

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

type OutputFormat int

const (
	FormatAuth OutputFormat = iota
	FormatJSON
)

var attackerCountries = []string{"CN", "RU", "VN", "IR", "KP", "BR", "IN", "ID"}

// DemoGenerator emits synthetic SSH authentication traffic: a baseline of
// legitimate logins from a stable fleet of users and addresses, mixed with
// attack campaigns. Each campaign pins one attacker address and runs either
// a brute-force loop against a single account, a credential-stuffing sweep
// or a low-rate recon probe, so the windowed detectors see realistic
// sequences rather than independent random events.
type DemoGenerator struct {
	rate         int
	bufferSize   int
	attackPct    int
	outputFormat OutputFormat
	mu           sync.Mutex
	running      bool
	stopChan     chan struct{}
	generated    atomic.Uint64

	normalIPs   []netip.Addr
	attackerIPs []netip.Addr
	normalUsers []string
	targetUsers []string
	probeUsers  []string

	attack     campaign
	bufferPool sync.Pool
}

type campaign struct {
	ip        netip.Addr
	country   string
	mode      int
	user      string
	remaining int
}

const (
	campaignBruteForce = iota
	campaignStuffing
	campaignRecon
)

type DemoConfig struct {
	Rate          int
	BufferSize    int
	AttackPercent int
	Format        OutputFormat
}

func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Rate:          1000,
		BufferSize:    50000,
		AttackPercent: 15,
		Format:        FormatAuth,
	}
}

func NewDemoGenerator(config DemoConfig) *DemoGenerator {
	if config.Rate <= 0 {
		config.Rate = 1000
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}
	if config.AttackPercent <= 0 || config.AttackPercent > 100 {
		config.AttackPercent = 15
	}

	normalIPs := generateIPPool(2000, []string{
		"10.1.", "10.2.", "192.168.", "172.16.", "100.64.",
		"203.0.113.", "198.51.100.",
	})
	attackerIPs := generateIPPool(500, []string{
		"45.33.", "185.220.", "89.234.", "91.121.", "51.15.",
		"104.244.", "198.98.", "209.141.", "23.129.", "171.25.",
	})

	return &DemoGenerator{
		rate:         config.Rate,
		bufferSize:   config.BufferSize,
		attackPct:    config.AttackPercent,
		outputFormat: config.Format,
		stopChan:     make(chan struct{}),
		normalIPs:    normalIPs,
		attackerIPs:  attackerIPs,
		normalUsers: []string{
			"deploy", "alice", "bob", "carol", "dave", "erin",
			"svc-backup", "svc-deploy", "jenkins", "ansible", "git",
		},
		targetUsers: []string{
			"root", "admin", "deploy", "ubuntu", "ec2-user",
		},
		probeUsers: []string{
			"admin", "test", "oracle", "postgres", "ftpuser", "www-data",
			"mysql", "guest", "user", "pi", "vagrant", "hadoop", "tomcat",
			"nagios", "zabbix", "teamspeak", "minecraft", "dev", "demo",
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 512))
			},
		},
	}
}

func (g *DemoGenerator) Start(ctx context.Context) (<-chan *domain.Event, <-chan error) {
	eventChan := make(chan *domain.Event, g.bufferSize)
	errChan := make(chan error, 10)

	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		close(eventChan)
		return eventChan, errChan
	}
	g.running = true
	g.stopChan = make(chan struct{})
	g.mu.Unlock()

	go func() {
		defer close(eventChan)
		defer close(errChan)

		log.Info().Int("rate", g.rate).Int("attack_percent", g.attackPct).Msg("Demo generator started (batch mode)")

		batchesPerSecond := 66
		batchSize := g.rate / batchesPerSecond

		if batchSize < 10 {
			batchSize = 10
			batchesPerSecond = g.rate / batchSize
			if batchesPerSecond < 1 {
				batchesPerSecond = 1
				batchSize = g.rate
			}
		}
		if batchSize > 10000 {
			batchSize = 10000
		}

		batchInterval := time.Second / time.Duration(batchesPerSecond)
		if batchInterval < 15*time.Millisecond {
			batchInterval = 15 * time.Millisecond
		}

		ticker := time.NewTicker(batchInterval)
		defer ticker.Stop()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		for {
			select {
			case <-ctx.Done():
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped (context cancelled)")
				return
			case <-g.stopChan:
				log.Info().Uint64("total_generated", g.generated.Load()).Msg("Demo generator stopped")
				return
			case <-ticker.C:
				for i := 0; i < batchSize; i++ {
					event := g.generateEvent(rng)
					select {
					case eventChan <- event:
						g.generated.Add(1)
					default:
					}
				}
			}
		}
	}()

	return eventChan, errChan
}

func (g *DemoGenerator) generateEvent(rng *rand.Rand) *domain.Event {
	ev := &domain.Event{Timestamp: time.Now()}

	if rng.Intn(100) < g.attackPct {
		g.nextAttackEvent(rng, ev)
	} else {
		g.nextNormalEvent(rng, ev)
	}

	if g.outputFormat == FormatJSON {
		ev.RawLine = g.buildJSONLine(ev)
	} else {
		ev.RawLine = buildAuthLine(ev, rng)
	}

	return ev
}

// nextNormalEvent pairs each address with a stable username so the history
// store sees users logging in from their usual machines, with a small rate
// of typos and travel from unfamiliar addresses.
func (g *DemoGenerator) nextNormalEvent(rng *rand.Rand, ev *domain.Event) {
	ipIdx := rng.Intn(len(g.normalIPs))
	ev.SourceIP = g.normalIPs[ipIdx].String()
	ev.Username = g.normalUsers[ipIdx%len(g.normalUsers)]
	ev.Country = "US"

	if rng.Intn(100) < 2 {
		ev.Username = g.normalUsers[rng.Intn(len(g.normalUsers))]
	}

	switch roll := rng.Intn(100); {
	case roll < 80:
		ev.EventType = domain.EventAcceptedPassword
	case roll < 90:
		ev.EventType = domain.EventFailedPassword
	default:
		ev.EventType = domain.EventDisconnect
	}
}

func (g *DemoGenerator) nextAttackEvent(rng *rand.Rand, ev *domain.Event) {
	if g.attack.remaining <= 0 {
		g.attack = campaign{
			ip:        g.attackerIPs[rng.Intn(len(g.attackerIPs))],
			country:   attackerCountries[rng.Intn(len(attackerCountries))],
			mode:      rng.Intn(3),
			user:      g.targetUsers[rng.Intn(len(g.targetUsers))],
			remaining: 20 + rng.Intn(180),
		}
	}
	g.attack.remaining--

	ev.SourceIP = g.attack.ip.String()
	ev.Country = g.attack.country

	switch g.attack.mode {
	case campaignBruteForce:
		ev.Username = g.attack.user
		ev.EventType = domain.EventFailedPassword
	case campaignStuffing:
		ev.Username = g.probeUsers[rng.Intn(len(g.probeUsers))]
		if rng.Intn(2) == 0 {
			ev.EventType = domain.EventInvalidUser
		} else {
			ev.EventType = domain.EventFailedPassword
		}
	default:
		ev.Username = g.probeUsers[rng.Intn(len(g.probeUsers))]
		ev.EventType = domain.EventInvalidUser
	}
}

func buildAuthLine(ev *domain.Event, rng *rand.Rand) string {
	port := intToStr(1024 + rng.Intn(64000))
	pid := intToStr(1000 + rng.Intn(60000))

	var b strings.Builder
	b.Grow(160)
	b.WriteString(ev.Timestamp.Format(syslogTimeLayout))
	b.WriteString(" bastion sshd[")
	b.WriteString(pid)
	b.WriteString("]: ")

	switch ev.EventType {
	case domain.EventFailedPassword:
		b.WriteString("Failed password for ")
		b.WriteString(ev.Username)
		b.WriteString(" from ")
		b.WriteString(ev.SourceIP)
		b.WriteString(" port ")
		b.WriteString(port)
		b.WriteString(" ssh2")
	case domain.EventInvalidUser:
		b.WriteString("Invalid user ")
		b.WriteString(ev.Username)
		b.WriteString(" from ")
		b.WriteString(ev.SourceIP)
		b.WriteString(" port ")
		b.WriteString(port)
	case domain.EventAcceptedPassword:
		b.WriteString("Accepted password for ")
		b.WriteString(ev.Username)
		b.WriteString(" from ")
		b.WriteString(ev.SourceIP)
		b.WriteString(" port ")
		b.WriteString(port)
		b.WriteString(" ssh2")
	default:
		b.WriteString("Disconnected from user ")
		b.WriteString(ev.Username)
		b.WriteByte(' ')
		b.WriteString(ev.SourceIP)
		b.WriteString(" port ")
		b.WriteString(port)
	}

	return b.String()
}

type demoJSONEvent struct {
	Timestamp string `json:"timestamp"`
	SourceIP  string `json:"source_ip"`
	Username  string `json:"username"`
	EventType string `json:"event_type"`
	Country   string `json:"country,omitempty"`
}

func (g *DemoGenerator) buildJSONLine(ev *domain.Event) string {
	buf := g.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer g.bufferPool.Put(buf)

	jsonEv := demoJSONEvent{
		Timestamp: ev.Timestamp.Format(time.RFC3339),
		SourceIP:  ev.SourceIP,
		Username:  ev.Username,
		EventType: string(ev.EventType),
		Country:   ev.Country,
	}

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(jsonEv); err != nil {
		return "{\"error\":\"encoding failed\"}"
	}

	result := buf.String()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}

	return result
}

func intToStr(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (g *DemoGenerator) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}

	close(g.stopChan)
	g.running = false

	return nil
}

func (g *DemoGenerator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *DemoGenerator) Generated() uint64 {
	return g.generated.Load()
}

func generateIPPool(count int, prefixes []string) []netip.Addr {
	ips := make([]netip.Addr, 0, count)
	perPrefix := count / len(prefixes)
	remainder := count % len(prefixes)

	for i, prefix := range prefixes {
		n := perPrefix
		if i < remainder {
			n++
		}
		// a prefix may carry two octets ("45.33.") or three ("203.0.113.")
		full := strings.Count(prefix, ".") == 3
		for j := 0; j < n; j++ {
			var ipStr string
			if full {
				ipStr = prefix + intToStr(j%254+1)
			} else {
				third := (j / 256) % 256
				fourth := j % 256
				if fourth == 0 {
					fourth = 1
				}
				ipStr = prefix + intToStr(third) + "." + intToStr(fourth)
			}
			if addr, err := netip.ParseAddr(ipStr); err == nil {
				ips = append(ips, addr)
			}
		}
	}

	return ips
}
