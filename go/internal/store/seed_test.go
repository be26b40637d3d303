package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mcdev12/warboard/go/internal/store"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoadSeedFile(t *testing.T) {
	Convey("Given a seed file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "wars.json")

		Convey("When every record is well formed", func() {
			So(os.WriteFile(path, []byte(`{
				"b-war": {"tag":"B","enemy_tag":"C","home_score":[],"enemy_score":[],"diff":[]},
				"a-war": {"tag":"A","enemy_tag":"D","home_score":[45],"enemy_score":[37],"diff":[8]}
			}`), 0o600), ShouldBeNil)

			Convey("Then wars are returned in id order", func() {
				ids, wars, err := store.LoadSeedFile(path)
				So(err, ShouldBeNil)
				So(ids, ShouldResemble, []string{"a-war", "b-war"})
				So(wars["a-war"].Diff, ShouldResemble, []int{8})
			})
		})

		Convey("When a record is malformed", func() {
			So(os.WriteFile(path, []byte(`{"x": {"tag":"A"}}`), 0o600), ShouldBeNil)

			Convey("Then loading fails", func() {
				_, _, err := store.LoadSeedFile(path)
				So(errors.Is(err, store.ErrMalformedRecord), ShouldBeTrue)
			})
		})

		Convey("When the file is missing", func() {
			_, _, err := store.LoadSeedFile(filepath.Join(dir, "missing.json"))
			So(err, ShouldNotBeNil)
		})
	})
}
