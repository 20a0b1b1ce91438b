// vidroom-db creates or upgrades the room store and optionally loads room to session
// mappings into it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	jcr "github.com/tinode/jsonco"

	"github.com/vidroom/vidroom/server/concurrency"
	_ "github.com/vidroom/vidroom/server/db/dynamodb"
	_ "github.com/vidroom/vidroom/server/db/firebase"
	_ "github.com/vidroom/vidroom/server/db/memory"
	_ "github.com/vidroom/vidroom/server/db/mongodb"
	_ "github.com/vidroom/vidroom/server/db/mysql"
	_ "github.com/vidroom/vidroom/server/db/postgres"
	_ "github.com/vidroom/vidroom/server/db/redis"
	_ "github.com/vidroom/vidroom/server/db/rethinkdb"
	_ "github.com/vidroom/vidroom/server/db/sqlite"
	"github.com/vidroom/vidroom/server/store"
	"github.com/vidroom/vidroom/server/store/types"
)

// Number of rooms written concurrently.
const importWorkers = 8

type configType struct {
	StoreConfig json.RawMessage `json:"store_config"`
}

/*
Data is the content of rooms.json:

	{
	  "rooms": [
	    {"name": "alice-standup", "sessionId": "1_MX40NzI..."},
	    {"name": "Sales Demo", "sessionId": "2_MX40NzI...",
	     "embedProps": {"url": "https://example.com/demo", "width": 640, "height": 480}}
	  ]
	}
*/
type Data struct {
	Rooms []types.Room `json:"rooms"`
}

func loadData(fname string) (*Data, error) {
	var data Data
	if fname == "" || fname == "-" {
		return &data, nil
	}
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func readConfig(fname string) (*configType, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config configType
	jr := jcr.New(file)
	if err = json.NewDecoder(jr).Decode(&config); err != nil {
		switch jerr := err.(type) {
		case *json.UnmarshalTypeError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			log.Fatalf("Unmarshall error in config file in %s at %d:%d (offset %d bytes): %s",
				jerr.Field, lnum, cnum, jerr.Offset, jerr.Error())
		case *json.SyntaxError:
			lnum, cnum, _ := jr.LineAndChar(jerr.Offset)
			log.Fatalf("Syntax error in config file at %d:%d (offset %d bytes): %s",
				lnum, cnum, jerr.Offset, jerr.Error())
		default:
			return nil, err
		}
	}
	return &config, nil
}

// importRooms writes the rooms to the store and returns the number of rooms which failed.
func importRooms(ctx context.Context, rooms store.RoomStore, data []types.Room) int {
	var failed atomic.Int32
	pool := concurrency.NewGoRoutinePool(importWorkers)
	for i := range data {
		room := data[i]
		pool.Schedule(func() {
			if err := rooms.SetSession(ctx, room.Name, room.SessionID, room.Embed); err != nil {
				log.Printf("Room '%s' not imported: %s", room.Name, err)
				failed.Add(1)
			}
		})
	}
	pool.Wait()
	return int(failed.Load())
}

func main() {
	var reset = flag.Bool("reset", false, "force database reset")
	var upgrade = flag.Bool("upgrade", false, "perform database version upgrade")
	var noInit = flag.Bool("no_init", false, "check that database exists but don't create if missing")
	var datafile = flag.String("data", "", "name of file with rooms to load")
	var conffile = flag.String("config", "./vidroom.conf", "config of the database connection")

	flag.Parse()

	data, err := loadData(*datafile)
	if err != nil {
		log.Fatalln("Failed to read room data:", err)
	}

	config, err := readConfig(*conffile)
	if err != nil {
		log.Fatalln("Failed to read config file:", err)
	}

	st, err := store.Open(config.StoreConfig)
	if err != nil {
		log.Fatalln("Failed to init DB adapter:", err)
	}
	defer st.Close()

	log.Println("Database", st.GetAdapterName(), st.GetAdapterVersion())

	if err = st.CheckDbVersion(); err != nil {
		if strings.Contains(err.Error(), "Database not initialized") {
			if *noInit {
				log.Fatalln("Database not found.")
			}
			log.Println("Database not found. Creating.")
		} else if strings.Contains(err.Error(), "Invalid database version") {
			msg := "Wrong DB version: expected " + strconv.Itoa(st.GetAdapterVersion()) + ", got " +
				strconv.Itoa(st.GetDbVersion()) + "."
			if *reset {
				log.Println(msg, "Dropping and recreating the database.")
			} else if *upgrade {
				log.Println(msg, "Upgrading the database.")
			} else {
				log.Fatalln(msg, "Use --reset to reset, --upgrade to upgrade.")
			}
		} else {
			log.Fatalln("Failed to check DB version:", err)
		}
	} else if *reset {
		log.Println("Database reset requested")
	} else if len(data.Rooms) == 0 {
		log.Println("Database exists, DB version is correct. All done.")
		return
	}

	if *upgrade {
		err = st.UpgradeDb()
		if err == nil {
			log.Println("Database successfully upgraded.")
		}
	} else if *reset || err != nil {
		err = st.InitDb(*reset)
		if err == nil {
			var action string
			if *reset {
				action = "reset"
			} else {
				action = "initialized"
			}
			log.Println("Database", action)
		}
	}

	if err != nil {
		log.Fatalln("Failed to init DB:", err)
	}

	if len(data.Rooms) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if failed := importRooms(ctx, st, data.Rooms); failed > 0 {
		log.Fatalf("Imported %d rooms, %d failed.", len(data.Rooms)-failed, failed)
	}
	log.Println("Imported", len(data.Rooms), "rooms. All done.")
}
