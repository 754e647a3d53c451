package model

import (
	"github.com/globalsign/mgo/bson"
)

type User struct {
	Id          bson.ObjectId  `bson:"_id,omitempty"`
	SteamID     string         `bson:"steamID"`
	Username    string         `bson:"username"`
	DisplayName string         `bson:"displayName"`
	AvatarUrl   string         `bson:"avatarURL"`
	Ratings     map[string]int `bson:"ratings"`
	Online      bool           `bson:"isOnline"`
}

//Rating returns the stored skill rating of this user for the given variant
//and reports whether one exists yet.
func (u *User) Rating(variant string) (int, bool) {
	if u.Ratings == nil {
		return 0, false
	}
	rating, ok := u.Ratings[variant]
	return rating, ok
}

func (u User) GetCollectionName() string {
	return "users"
}
