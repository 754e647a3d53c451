package server

import (
	"cirello.io/goherokuname"
	"github.com/globalsign/mgo"
	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"
	"matchbroker/model"
)

//UserStore is the persistence collaborator. The broker only ever needs to
//resolve a user record by identity and write it back.
type UserStore interface {
	ByID(id string) (*model.User, error)
	EnsureUser(steamID string) (*model.User, error)
	Save(user *model.User) error
}

type MongoUserStore struct {
	db     *mgo.Session
	config *Config
}

func NewMongoUserStore(db *mgo.Session, config *Config) *MongoUserStore {
	return &MongoUserStore{
		db:     db,
		config: config,
	}
}

func (s *MongoUserStore) ByID(id string) (*model.User, error) {

	if !bson.IsObjectIdHex(id) {
		return nil, errors.Errorf("invalid user id %q", id)
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	user := &model.User{}
	err := db.C(user.GetCollectionName()).FindId(bson.ObjectIdHex(id)).One(user)
	if err != nil {
		return nil, err
	}

	return user, nil

}

//EnsureUser resolves a steam identity to its user record, creating one with
//a generated display name the first time the identity is seen.
func (s *MongoUserStore) EnsureUser(steamID string) (*model.User, error) {

	if steamID == "" {
		return nil, errors.New("steam id couldn't be empty")
	}

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	user := &model.User{}

	err := db.C(user.GetCollectionName()).Find(bson.M{
		"steamID": steamID,
	}).One(user)
	if err == nil {
		return user, nil
	}
	if err.Error() != mgo.ErrNotFound.Error() {
		return nil, err
	}

	username := goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")

	//Generate user name until find one that doesn't exists in db
	for {
		count, err := db.C(user.GetCollectionName()).Find(bson.M{"username": username}).Count()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			break
		}
		username = goherokuname.HaikunateCustom("-", 4, "DfWx9873214560jzrl")
	}

	user = &model.User{
		Id:          bson.NewObjectId(),
		SteamID:     steamID,
		Username:    username,
		DisplayName: username,
		AvatarUrl:   "http://api.adorable.io/avatars/150/" + username + ".png",
		Ratings:     make(map[string]int),
	}

	if err := db.C(user.GetCollectionName()).Insert(&user); err != nil {
		return nil, err
	}

	return user, nil

}

func (s *MongoUserStore) Save(user *model.User) error {

	conn := s.db.Copy()
	defer conn.Close()
	db := conn.DB(s.config.DBConfig.Name)

	return db.C(user.GetCollectionName()).UpdateId(user.Id, user)

}

func ConnectDB(config *Config, logger *Logger) *mgo.Session {

	conn, err := mgo.Dial(config.DBConfig.ConnString)
	if err != nil {
		logger.Fatalw("Cannot dial mongo", "error", err)
	}
	logger.Info("Mongo connection completed")
	return conn

}
