package accounts

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/jimiolaniyan/accounts/auth"
)

type BddTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (bs *BddTestSuite) SetupSuite() {
	bs.ctx = context.Background()
}

func (bs *BddTestSuite) TestSignupAndProfileEditing() {
	Convey("Given an empty directory", bs.T(), func() {
		dir, _ := newTestDirectory()

		Convey("When bob registers with a profile picture", func() {
			bob, err := dir.Register(bs.ctx, RegisterRequest{Name: "bob", Email: "bob@x.com", Password: "pw1", ProfilePic: "a.png"})
			So(err, ShouldBeNil)
			So(bob.ProfilePic, ShouldEqual, "a.png")

			Convey("Then someone else cannot take his name", func() {
				_, err := dir.Register(bs.ctx, RegisterRequest{Name: "bob", Email: "other@x.com", Password: "pw2"})
				So(err, ShouldEqual, ErrDuplicateName)
			})

			Convey("Then carol cannot take his email", func() {
				_, err := dir.Register(bs.ctx, RegisterRequest{Name: "carol", Email: "bob@x.com", Password: "pw3"})
				So(err, ShouldEqual, ErrDuplicateEmail)
			})

			Convey("When bob renames himself and adds a biography", func() {
				bobby, err := dir.UpdateProfile(bs.ctx, UpdateProfileRequest{Name: "bob", NewName: "bobby", Biography: strPtr("hi")})
				So(err, ShouldBeNil)

				Convey("Then his picture is still a.png", func() {
					So(bobby.Name, ShouldEqual, "bobby")
					So(bobby.Biography, ShouldEqual, "hi")
					So(bobby.ProfilePic, ShouldEqual, "a.png")
				})

				Convey("And he can log in under the new name only", func() {
					acc, err := dir.Authenticate(bs.ctx, "bobby", "pw1")
					So(err, ShouldBeNil)
					So(acc.ID, ShouldEqual, bob.ID)

					_, err = dir.Authenticate(bs.ctx, "bob", "pw1")
					So(err, ShouldEqual, ErrUnknownUser)
				})

				Convey("And the old name is free again", func() {
					_, err := dir.Register(bs.ctx, RegisterRequest{Name: "bob", Email: "new-bob@x.com", Password: "pw4"})
					So(err, ShouldBeNil)
				})
			})
		})
	})
}

func (bs *BddTestSuite) TestUniqueness() {
	Convey("Given a sequence of registrations with overlapping names and emails", bs.T(), func() {
		dir, _ := newTestDirectory()
		names := []string{"a", "b", "a", "c", "b", "d"}
		emails := []string{"1@x.com", "2@x.com", "3@x.com", "1@x.com", "4@x.com", "2@x.com"}

		Convey("When they are all attempted", func() {
			var created []*Account
			for i := range names {
				acc, err := dir.Register(bs.ctx, RegisterRequest{Name: names[i], Email: emails[i], Password: "pw"})
				if err == nil {
					created = append(created, acc)
				}
			}

			Convey("Then no two created accounts share a name or an email", func() {
				seenNames, seenEmails := map[string]bool{}, map[string]bool{}
				for _, acc := range created {
					So(seenNames[acc.Name], ShouldBeFalse)
					So(seenEmails[acc.Email], ShouldBeFalse)
					seenNames[acc.Name] = true
					seenEmails[acc.Email] = true
				}
				So(len(created), ShouldEqual, 3)
			})
		})
	})
}

func (bs *BddTestSuite) TestDuplicatePrecedence() {
	Convey("Given alice registered with alice@x.com", bs.T(), func() {
		dir, _ := newTestDirectory()
		_, err := dir.Register(bs.ctx, RegisterRequest{Name: "alice", Email: "alice@x.com", Password: "pw"})
		So(err, ShouldBeNil)

		Convey("When someone registers with both her name and her email", func() {
			_, err := dir.Register(bs.ctx, RegisterRequest{Name: "alice", Email: "alice@x.com", Password: "pw"})

			Convey("Then the name collision is reported", func() {
				So(err, ShouldEqual, ErrDuplicateName)
			})
		})
	})
}

func (bs *BddTestSuite) TestHashRoundTrip() {
	Convey("Given a bcrypt hasher", bs.T(), func() {
		h := auth.NewBcryptHasher(bcrypt.MinCost)
		passwords := []string{"p", "correct-pw", "with spaces", "ünïcödé"}

		for _, p := range passwords {
			hash, err := h.Hash(p)
			So(err, ShouldBeNil)

			Convey(fmt.Sprintf("Then %q verifies against its own hash only", p), func() {
				ok, err := h.Verify(p, hash)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)

				for _, q := range passwords {
					if q == p {
						continue
					}
					ok, err := h.Verify(q, hash)
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
				}
			})
		}
	})
}

func (bs *BddTestSuite) TestRenameToSelf() {
	Convey("Given alice", bs.T(), func() {
		dir, _ := newTestDirectory()
		_, err := dir.Register(bs.ctx, RegisterRequest{Name: "alice", Email: "alice@x.com", Password: "pw"})
		So(err, ShouldBeNil)

		Convey("When she renames herself to alice and changes her biography", func() {
			acc, err := dir.UpdateProfile(bs.ctx, UpdateProfileRequest{Name: "alice", NewName: "alice", Biography: strPtr("still me")})

			Convey("Then the update succeeds", func() {
				So(err, ShouldBeNil)
				So(acc.Name, ShouldEqual, "alice")
				So(acc.Biography, ShouldEqual, "still me")
			})
		})

		Convey("When she renames herself to alice and changes nothing else", func() {
			_, err := dir.UpdateProfile(bs.ctx, UpdateProfileRequest{Name: "alice", NewName: "alice"})

			Convey("Then nothing to update is reported, not a duplicate", func() {
				So(err, ShouldEqual, ErrNoOpUpdate)
				So(err, ShouldNotEqual, ErrDuplicateName)
			})
		})
	})
}

func (bs *BddTestSuite) TestAssetRetention() {
	Convey("Given alice with a profile picture", bs.T(), func() {
		dir, repo := newTestDirectory()
		_, err := dir.Register(bs.ctx, RegisterRequest{Name: "alice", Email: "alice@x.com", Password: "pw", ProfilePic: "a.png"})
		So(err, ShouldBeNil)

		Convey("When she updates without a new picture", func() {
			_, err := dir.UpdateProfile(bs.ctx, UpdateProfileRequest{Name: "alice", NewName: "alicia", Biography: strPtr("bio")})
			So(err, ShouldBeNil)

			Convey("Then her picture is unchanged", func() {
				acc, err := repo.FindByName(bs.ctx, "alicia")
				So(err, ShouldBeNil)
				So(acc.ProfilePic, ShouldEqual, "a.png")
			})

			Convey("When she then uploads a new picture", func() {
				acc, err := dir.UpdateProfile(bs.ctx, UpdateProfileRequest{Name: "alicia", ProfilePic: "b.png"})

				Convey("Then the picture is replaced", func() {
					So(err, ShouldBeNil)
					So(acc.ProfilePic, ShouldEqual, "b.png")
				})
			})
		})
	})
}

func (bs *BddTestSuite) TestAuthentication() {
	Convey("Given alice registered with correct-pw", bs.T(), func() {
		dir, _ := newTestDirectory()
		registered, err := dir.Register(bs.ctx, RegisterRequest{Name: "alice", Email: "a@x.com", Password: "correct-pw", ProfilePic: "alice.png"})
		So(err, ShouldBeNil)

		Convey("When she logs in with correct-pw", func() {
			acc, err := dir.Authenticate(bs.ctx, "alice", "correct-pw")

			Convey("Then her registered profile is returned", func() {
				So(err, ShouldBeNil)
				So(acc.ID, ShouldEqual, registered.ID)
				So(acc.Name, ShouldEqual, "alice")
				So(acc.ProfilePic, ShouldEqual, "alice.png")
			})
		})

		Convey("When she logs in with wrong-pw", func() {
			_, err := dir.Authenticate(bs.ctx, "alice", "wrong-pw")

			Convey("Then the credentials are rejected", func() {
				So(err, ShouldEqual, ErrBadCredentials)
			})
		})

		Convey("When nobody logs in", func() {
			_, err := dir.Authenticate(bs.ctx, "nobody", "x")

			Convey("Then the user is unknown", func() {
				So(err, ShouldEqual, ErrUnknownUser)
			})
		})
	})
}

func TestBddSuite(t *testing.T) {
	suite.Run(t, new(BddTestSuite))
}
