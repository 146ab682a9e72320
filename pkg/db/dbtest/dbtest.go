// Package dbtest opens throwaway SQLite stores migrated with every model.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// Open returns a client over a private in-memory database.
func Open(t testing.TB, opts ...db.Options) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=1", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// One connection: transactions run one at a time and nothing may query
	// outside its tx while one is open.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	var opt db.Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	return db.Wrap(conn, opt)
}

// SeedUser inserts an email-verified user with the given role and a profile
// whose handle equals the uid.
func SeedUser(t testing.TB, client *db.Client, uid string, role enums.Role, private bool) models.User {
	t.Helper()

	user := models.User{UID: uid, Role: role, EmailVerified: true, VerificationStatus: enums.VerificationNone}
	if err := client.DB().Create(&user).Error; err != nil {
		t.Fatalf("seed user %s: %v", uid, err)
	}
	profile := models.PublicProfile{UID: uid, Handle: strings.ToLower(uid), IsPrivateAccount: private}
	if err := client.DB().Create(&profile).Error; err != nil {
		t.Fatalf("seed profile %s: %v", uid, err)
	}
	return user
}
