// Package version хранит сведения о сборке, проставляемые через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/commerce/internal/version.version=v1.2.0"
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// Fields — поля сборки для стартовой записи в лог.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "build_date": date}
}

// NewBuildInfoCollector возвращает gauge commerce_build_info со значением 1 и метками сборки.
func NewBuildInfoCollector() prometheus.Collector {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "commerce_build_info",
		Help: "Build information of the commerce service.",
	}, []string{"version", "commit", "date"})
	gauge.WithLabelValues(version, commit, date).Set(1)
	return gauge
}
