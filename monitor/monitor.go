package monitor

import (
	"net/http"
	"os"

	"pln-staging-api/config"
	"pln-staging-api/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Summary counts deposits by lifecycle state and journals by health status.
type Summary struct {
	Deposits map[string]int64 `json:"deposits"`
	Journals map[string]int64 `json:"journals"`
	Total    struct {
		Deposits int64 `json:"deposits"`
		Journals int64 `json:"journals"`
	} `json:"total"`
}

type groupCount struct {
	Name  string
	Total int64
}

// Summarize reads the current counts from db.
func Summarize(db *gorm.DB) (*Summary, error) {
	summary := &Summary{Deposits: map[string]int64{}, Journals: map[string]int64{}}

	var deposits []groupCount
	if err := db.Model(&models.Deposit{}).
		Select("state AS name, COUNT(*) AS total").
		Group("state").
		Scan(&deposits).Error; err != nil {
		return nil, err
	}
	for _, row := range deposits {
		summary.Deposits[row.Name] = row.Total
		summary.Total.Deposits += row.Total
	}

	var journals []groupCount
	if err := db.Model(&models.Journal{}).
		Select("status AS name, COUNT(*) AS total").
		Group("status").
		Scan(&journals).Error; err != nil {
		return nil, err
	}
	for _, row := range journals {
		summary.Journals[row.Name] = row.Total
		summary.Total.Journals += row.Total
	}
	return summary, nil
}

// RegisterMonitorPage mounts the monitor page and its JSON summary.
func RegisterMonitorPage(router *gin.Engine, db *gorm.DB) {
	if db == nil {
		db = config.DB
	}
	router.GET("/monitor", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(monitorPage))
	})
	router.GET("/monitor/summary", func(c *gin.Context) {
		summary, err := Summarize(db.WithContext(c.Request.Context()))
		if err != nil {
			config.Logger.Errorw("monitor summary failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read summary"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// RegisterLogsRoute exposes the application log to holders of LOGS_TOKEN.
// The route is not mounted when no token is configured.
func RegisterLogsRoute(router *gin.Engine) {
	token := os.Getenv("LOGS_TOKEN")
	if token == "" {
		return
	}
	router.GET("/logs", func(c *gin.Context) {
		if c.Query("token") != token {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		logData, err := os.ReadFile(config.LogFilePath())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to read log"})
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", logData)
	})
}

const monitorPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>PLN Staging Monitor</title>
  <style>
    * { margin: 0; padding: 0; box-sizing: border-box; }
    body {
      background: #14161c;
      color: #e0e0e0;
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
      padding: 20px;
    }
    .container { max-width: 1000px; margin: 0 auto; }
    h1 { font-size: 2rem; margin-bottom: 1.5rem; color: #a5b4fc; }
    h2 { font-size: 1.1rem; margin-bottom: 0.75rem; color: #cbd5e1; }
    .card {
      background: rgba(255, 255, 255, 0.05);
      border: 1px solid rgba(255, 255, 255, 0.1);
      border-radius: 12px;
      padding: 1.25rem;
      margin-bottom: 1.5rem;
    }
    table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
    td { padding: 0.4rem 0; border-bottom: 1px solid rgba(255, 255, 255, 0.06); }
    td.count { text-align: right; font-family: 'Monaco', 'Consolas', monospace; }
    .loading { opacity: 0.5; }
  </style>
</head>
<body>
  <div class="container">
    <h1>PLN Staging Monitor</h1>
    <div class="card"><div id="status" class="loading">Status: Checking...</div></div>
    <div class="card"><h2>Deposits by state</h2><table id="deposits"></table></div>
    <div class="card"><h2>Journals by status</h2><table id="journals"></table></div>
  </div>
  <script>
    const statusElement = document.getElementById('status');

    function fill(id, counts) {
      const table = document.getElementById(id);
      table.innerHTML = '';
      Object.keys(counts).sort().forEach(key => {
        const row = table.insertRow();
        row.insertCell().textContent = key;
        const cell = row.insertCell();
        cell.className = 'count';
        cell.textContent = counts[key];
      });
    }

    function refresh() {
      fetch('/api/v1/health')
        .then(res => res.json())
        .then(data => { statusElement.textContent = 'Status: ' + (data.status === 'ok' ? 'Online' : 'Degraded'); })
        .catch(() => { statusElement.textContent = 'Status: Offline'; })
        .finally(() => statusElement.classList.remove('loading'));

      fetch('/monitor/summary')
        .then(res => res.json())
        .then(data => { fill('deposits', data.deposits); fill('journals', data.journals); });
    }

    refresh();
    setInterval(refresh, 5000);
  </script>
</body>
</html>`
