package dummydb

import (
	"sync"

	"github.com/classsphere/backend/core/chat"
	"github.com/classsphere/backend/core/classroom"
	"github.com/classsphere/backend/core/notification"
	"github.com/classsphere/backend/core/user"
)

type (
	// DB is an in-memory stand-in for the record store; used in tests and
	// local development without postgres.
	DB struct {
		user      *userTable
		chat      *chatTable
		notif     *notificationTable
		classroom *classroomTable
	}

	userTable struct {
		sync.RWMutex
		table   map[string]*user.User
		pending map[string]*user.PendingSignup // by email
	}

	chatTable struct {
		sync.RWMutex
		chats    map[string]*chat.Chat
		messages map[string][]chat.Message // by chat id, in insert order
		users    map[string]*user.User     // shared with userTable.table
	}

	notificationTable struct {
		sync.RWMutex
		table   map[int]*notification.Notification
		idCount int
	}

	classroomTable struct {
		sync.RWMutex
		table    map[string]*classroom.Classroom
		students map[string]map[string]struct{} // classroom id -> student ids
	}
)

func Open() (*DB, error) {
	users := make(map[string]*user.User)
	return &DB{
		user:      &userTable{table: users, pending: make(map[string]*user.PendingSignup)},
		chat:      &chatTable{chats: make(map[string]*chat.Chat), messages: make(map[string][]chat.Message), users: users},
		notif:     &notificationTable{table: make(map[int]*notification.Notification)},
		classroom: &classroomTable{table: make(map[string]*classroom.Classroom), students: make(map[string]map[string]struct{})},
	}, nil
}
