// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "tnsmarshal")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/tnsmarshal.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxage", 28)
	viper.SetDefault("main.log.backups", 3)
	viper.SetDefault("main.log.compress", false)

	viper.SetDefault("tns.archiveurl", "https://www.wis-tns.org/system/files/tns_public_objects")
	viper.SetDefault("tns.botid", 0)
	viper.SetDefault("tns.botname", "")
	viper.SetDefault("tns.apikey", "")
	viper.SetDefault("tns.datadir", "data/tns_work")
	viper.SetDefault("tns.dailydir", "data/tns_daily")
	viper.SetDefault("tns.timeout", 60)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "data/tnsmarshal.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "tnsmarshal")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "tnsmarshal")

	viper.SetDefault("crossmatch.desiradiusarcsec", 30.0)
	viper.SetDefault("crossmatch.lensradiusarcsec", 15.0)
	viper.SetDefault("crossmatch.workers", 4)
	viper.SetDefault("crossmatch.windowdays", 3)
	viper.SetDefault("crossmatch.outputdir", "data/daily_run")
	viper.SetDefault("crossmatch.flagfile", "data/flag_objects.txt")

	viper.SetDefault("expiry.thresholddays", 15)
	viper.SetDefault("expiry.runat", "00:20")
}
