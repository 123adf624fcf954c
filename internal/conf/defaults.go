// defaults.go: default configuration values registered with viper.
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration.
func setDefaultConfig() {
	// Main settings
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "LeafScan-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/leafscan.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Scanner settings
	viper.SetDefault("scanner.debug", false)
	viper.SetDefault("scanner.interval", 1000*time.Millisecond)
	viper.SetDefault("scanner.inputsize", 224)
	viper.SetDefault("scanner.leafmodelpath", "models/leaf_presence.tflite")
	viper.SetDefault("scanner.pestmodelpath", "models/pest_presence.tflite")
	viper.SetDefault("scanner.leafthreshold", 0.5)
	viper.SetDefault("scanner.pestthreshold", 0.5)
	viper.SetDefault("scanner.threads", 0)
	viper.SetDefault("scanner.usexnnpack", true)
	viper.SetDefault("scanner.defaultpadding", 0.5)

	// Capture settings
	viper.SetDefault("capture.path", "evidence")
	viper.SetDefault("capture.jpegquality", 90)

	// Upload settings
	viper.SetDefault("upload.debug", false)
	viper.SetDefault("upload.batchsize", 5)
	viper.SetDefault("upload.maxretries", 3)
	viper.SetDefault("upload.retrydelay", 1000*time.Millisecond)
	viper.SetDefault("upload.batchdelay", 500*time.Millisecond)

	// Backend settings
	viper.SetDefault("backend.debug", false)
	viper.SetDefault("backend.baseurl", "http://localhost:8000")
	viper.SetDefault("backend.token", "")
	viper.SetDefault("backend.timeout", 45*time.Second)
	viper.SetDefault("backend.fieldcachettl", 5*time.Minute)
	viper.SetDefault("backend.defaultplantcount", 100)

	// Metrics settings
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "0.0.0.0:8090")

	// Output settings
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "leafscan.db")
}
