package social

// ThreadedComment is a top-level comment with its replies in chronological order.
type ThreadedComment struct {
	Comment
	Replies []Comment `json:"replies"`
}

// Thread is the rendered comment tree of a post.
type Thread struct {
	Comments   []ThreadedComment `json:"comments"`
	TotalCount int               `json:"totalCount"`
	// Dropped lists replies whose parent is not a top-level comment of the input. They are left out of
	// Comments and TotalCount.
	Dropped []Comment `json:"-"`
}

// ComposeThread groups chronologically ascending comments of one post into top-level comments and their
// replies. Input order is preserved at both levels.
func ComposeThread(comments []Comment) Thread {
	topLevel := make([]ThreadedComment, 0, len(comments))
	buckets := make(map[string][]Comment)
	bucketOrder := make([]string, 0)

	for _, comment := range comments {
		if !comment.IsReply() {
			topLevel = append(topLevel, ThreadedComment{Comment: comment})
			continue
		}
		parentID := *comment.ParentID
		if _, seen := buckets[parentID]; !seen {
			bucketOrder = append(bucketOrder, parentID)
		}
		buckets[parentID] = append(buckets[parentID], comment)
	}

	total := len(topLevel)
	attached := make(map[string]struct{}, len(topLevel))
	for index := range topLevel {
		id := topLevel[index].ID
		replies := buckets[id]
		if replies == nil {
			replies = []Comment{}
		}
		topLevel[index].Replies = replies
		total += len(replies)
		attached[id] = struct{}{}
	}

	thread := Thread{Comments: topLevel, TotalCount: total}
	for _, parentID := range bucketOrder {
		if _, ok := attached[parentID]; ok {
			continue
		}
		thread.Dropped = append(thread.Dropped, buckets[parentID]...)
	}
	return thread
}
