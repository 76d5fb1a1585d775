package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// RegisterDemoCallables adds the six example callables carried over from
// the original task catalog: a greeting, a random number generator, a
// simulated weather lookup, a simulated backup, a simulated long-running
// job, and a simulated cleanup sweep. They exist so a fresh install has a
// non-trivial /api/functions catalog beyond http_request.
func RegisterDemoCallables(r *Registry, logger *slog.Logger, dataDir string) {
	r.Register("hello_world", "Print a greeting.",
		[]Param{{Name: "name", Default: "world", HasDefault: true}},
		func(_ context.Context, args map[string]any) (any, error) {
			name := stringArg(args, "name", "world")
			msg := fmt.Sprintf("Hello, %s! It is now %s", name, time.Now().Format("2006-01-02 15:04:05"))
			logger.Info(msg)
			return msg, nil
		})

	r.Register("random_number", "Generate a random number in a range.",
		[]Param{
			{Name: "min_val", Default: 1, HasDefault: true},
			{Name: "max_val", Default: 100, HasDefault: true},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			minVal := intArg(args, "min_val", 1)
			maxVal := intArg(args, "max_val", 100)
			if maxVal < minVal {
				minVal, maxVal = maxVal, minVal
			}
			n := minVal + rand.Intn(maxVal-minVal+1)
			logger.Info("generated random number", "value", n)
			return n, nil
		})

	r.Register("fetch_weather", "Look up a simulated weather report for a city.",
		[]Param{{Name: "city", Default: "London", HasDefault: true}},
		func(_ context.Context, args map[string]any) (any, error) {
			city := stringArg(args, "city", "London")
			conditions := []string{"clear", "cloudy", "light rain", "heavy rain", "thunderstorms", "haze"}
			cond := conditions[rand.Intn(len(conditions))]
			temp := rand.Intn(40)
			result := fmt.Sprintf("%s weather: %s, %d°C", city, cond, temp)
			logger.Info(result)
			return result, nil
		})

	r.Register("create_backup", "Create a placeholder backup file.",
		[]Param{
			{Name: "folder_path", Default: "./", HasDefault: true},
			{Name: "backup_name", HasDefault: false},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			name := stringArg(args, "backup_name", "")
			if name == "" {
				name = "backup_" + time.Now().Format("20060102_150405")
			}
			path := filepath.Join(dataDir, "logs", name+".txt")
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return nil, fmt.Errorf("preparing backup directory: %w", err)
			}
			folder := stringArg(args, "folder_path", "./")
			content := fmt.Sprintf("simulated backup of %s at %s", folder, time.Now().Format(time.RFC3339))
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil { //nolint:gosec // path built from configured data dir
				return nil, fmt.Errorf("writing backup marker: %w", err)
			}
			logger.Info("created backup", "path", path)
			return path, nil
		})

	r.Register("long_running_task", "Simulate a long-running job, logging progress.",
		[]Param{{Name: "duration", Default: 10, HasDefault: true}},
		func(ctx context.Context, args map[string]any) (any, error) {
			duration := intArg(args, "duration", 10)
			if duration < 1 {
				duration = 1
			}
			logger.Info("starting long running task", "duration_seconds", duration)
			start := time.Now()
			for i := 0; i < duration; i++ {
				if i > 0 {
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				progress := float64(i+1) / float64(duration) * 100
				logger.Info("long running task progress", "percent", progress)
			}
			result := fmt.Sprintf("long running task completed in %.2fs", time.Since(start).Seconds())
			logger.Info(result)
			return result, nil
		})

	r.Register("data_cleanup", "Simulate cleaning up files older than a threshold.",
		[]Param{
			{Name: "max_age_days", Default: 30, HasDefault: true},
			{Name: "path", Default: "./logs", HasDefault: true},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			maxAge := intArg(args, "max_age_days", 30)
			path := stringArg(args, "path", "./logs")
			logger.Info("cleaning up old files", "path", path, "max_age_days", maxAge)
			count := rand.Intn(11)
			result := fmt.Sprintf("cleaned up %d old files", count)
			logger.Info(result)
			return result, nil
		})
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}
