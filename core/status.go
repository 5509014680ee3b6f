package core

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SystemStatus is the aggregated status for the admin dashboard.
type SystemStatus struct {
	Cache struct {
		Entities map[string]int64 `json:"entities"` // cached key count per entity namespace
		Healthy  bool             `json:"healthy"`
	} `json:"cache"`
	Database struct {
		Healthy bool `json:"healthy"`
	} `json:"database"`
	Memory struct {
		UsedBytes  uint64 `json:"used_bytes"`
		TotalBytes uint64 `json:"total_bytes"`
	} `json:"memory"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// StatusService collects cache keyspace counts and connectivity checks.
type StatusService struct {
	redis *redis.Client
	ping  func(ctx context.Context) error // database ping
}

func NewStatusService(client *redis.Client, dbPing func(ctx context.Context) error) *StatusService {
	return &StatusService{redis: client, ping: dbPing}
}

// Collect aggregates the current status. Cache counts are best-effort; a
// scan failure only flips Healthy, it never errors the endpoint.
func (s *StatusService) Collect(ctx context.Context, startedAt time.Time) SystemStatus {
	var st SystemStatus
	st.Cache.Entities = map[string]int64{}

	entities := []string{entityUser, entityBlog, entityProject, entitySkill, entityTech}
	st.Cache.Healthy = true
	for _, entity := range entities {
		count, err := s.countKeys(ctx, entity+":*")
		if err != nil {
			st.Cache.Healthy = false
			break
		}
		st.Cache.Entities[entity] = count
	}

	st.Database.Healthy = s.ping(ctx) == nil

	used, total := readMemInfo()
	st.Memory.UsedBytes = used
	st.Memory.TotalBytes = total

	if !startedAt.IsZero() {
		st.UptimeSeconds = int64(time.Since(startedAt).Seconds())
	}
	return st
}

func (s *StatusService) countKeys(ctx context.Context, pattern string) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, err
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// readMemInfo returns used and total bytes using /proc/meminfo.
// If unavailable, returns zeros.
func readMemInfo() (used, total uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			memTotal = parseKiBLine(line)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			memAvailable = parseKiBLine(line)
		}
	}
	if memTotal > 0 {
		total = memTotal
		if memAvailable <= memTotal {
			used = memTotal - memAvailable
		}
		// convert KiB -> bytes
		used *= 1024
		total *= 1024
	}
	return used, total
}

func parseKiBLine(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
