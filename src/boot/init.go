package boot

import (
	"context"
	"log"
	"mmpay/src/common"
	"mmpay/src/config"
	"mmpay/src/db"
	"mmpay/src/lib"
	"mmpay/src/models"
	"time"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Transaction{},
		&models.TransactionEvent{},
		&models.ReviewItem{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

func InitBroker() {
	go func() {
		if _, err := lib.KafkaCreateTopics(lib.NotifyTopic); err != nil {
			log.Printf("Error creating topics: %s\n", err.Error())
		}
	}()
}

// InitScheduler starts the reconciliation sweep: one run at boot to pick
// up anything that went stale while the process was down, then the
// recurring job.
func InitScheduler() {
	if _, err := lib.CreateOneTimeJob(time.Now().Add(10*time.Second), func() {
		common.SweepStuckTransactions(context.Background())
	}); err != nil {
		log.Printf("Error scheduling boot sweep: %s\n", err.Error())
	}

	id, err := lib.CreateCronJob(func() {
		common.SweepStuckTransactions(context.Background())
	}, config.SweepInterval())
	if err != nil {
		log.Printf("Error scheduling reconciliation sweep: %s\n", err.Error())
		return
	}
	log.Printf("Scheduled reconciliation sweep: job=%s every=%s\n", *id, config.SweepInterval())

	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}
