package cron_config

type Config struct {
	// Heartbeat, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Backstop full resync of every mailbox
	CronScheduleResync string `env:"MONITOR_RESYNC_SCHEDULE" envDefault:"@every 5m"`
}
