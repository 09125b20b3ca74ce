package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/example/comment-sync/internal/contract"
	"github.com/example/comment-sync/services/client/internal/store"
)

func printFeed(w io.Writer, st *store.Store) {
	p := st.Pagination()
	fmt.Fprintf(w, "-- page %d/%d, %d comments, sort %s --\n", p.CurrentPage, p.TotalPages, p.TotalComments, st.Sort())
	for _, c := range st.Feed() {
		printComment(w, c, "")
	}
}

func printThread(w io.Writer, st *store.Store, parentID string) {
	if parent, ok := st.Get(parentID); ok {
		printComment(w, parent, "")
	}
	set, ok := st.Replies(parentID)
	if !ok {
		return
	}
	for _, r := range set.Replies {
		printComment(w, r, "    ")
	}
	if set.HasMore() {
		fmt.Fprintf(w, "    ... %d more\n", set.Pagination.TotalComments-len(set.Replies))
	}
}

func printComment(w io.Writer, c store.Comment, indent string) {
	var flags []string
	if c.Liked {
		flags = append(flags, "liked")
	}
	if c.Disliked {
		flags = append(flags, "disliked")
	}
	if c.Edited() {
		flags = append(flags, "edited")
	}
	if c.Provisional {
		flags = append(flags, "unconfirmed")
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " (" + strings.Join(flags, ", ") + ")"
	}
	fmt.Fprintf(w, "%s%s  +%d -%d  %d replies  %s: %s%s\n",
		indent, c.ID, c.LikesCount, c.DislikesCount, c.RepliesCount, c.AuthorName, c.Content, suffix)
}

func printWire(w io.Writer, c contract.Comment) {
	fmt.Fprintf(w, "%s  +%d -%d  %s: %s\n", c.ID, c.LikesCount, c.DislikesCount, c.User.Name, c.Content)
}
