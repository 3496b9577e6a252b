package cli

// userError is an error the user can fix; Execute prints its hint under the
// message.
type userError struct {
	msg  string
	hint string
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Hint() string { return e.hint }
